package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode is a server-reported result code. Every RPC returns one; anything
// other than ESuccess means the operation did not take effect on the server.
type ErrorCode uint8

// Error codes as defined by the RED protocol. Codes below 128 are protocol
// level failures, codes from 128 on mirror POSIX errno conditions.
const (
	ESuccess           ErrorCode = 0
	EUnknownError      ErrorCode = 1
	EInvalidOperation  ErrorCode = 2
	EOperationAborted  ErrorCode = 3
	EInternalError     ErrorCode = 4
	EUnknownSessionID  ErrorCode = 5
	ENoFreeSessionID   ErrorCode = 6
	EUnknownObjectID   ErrorCode = 7
	ENoFreeObjectID    ErrorCode = 8
	EObjectIsLocked    ErrorCode = 9
	ENoMoreData        ErrorCode = 10
	EWrongListItemType ErrorCode = 11
	EProgramIsPurged   ErrorCode = 12

	EInvalidParameter  ErrorCode = 128
	ENoFreeMemory      ErrorCode = 129
	ENoFreeSpace       ErrorCode = 130
	EAccessDenied      ErrorCode = 131
	EAlreadyExists     ErrorCode = 132
	EDoesNotExist      ErrorCode = 133
	EInterrupted       ErrorCode = 134
	EIsDirectory       ErrorCode = 135
	ENotADirectory     ErrorCode = 136
	EWouldBlock        ErrorCode = 137
	EOverflow          ErrorCode = 138
	EBadFileDescriptor ErrorCode = 139
	EOutOfRange        ErrorCode = 140
	ENameTooLong       ErrorCode = 141
	EInvalidSeek       ErrorCode = 142
	ENotSupported      ErrorCode = 143
	ETooManyOpenFiles  ErrorCode = 144
)

var errorCodeNames = map[ErrorCode]string{
	ESuccess:           "E_SUCCESS",
	EUnknownError:      "E_UNKNOWN_ERROR",
	EInvalidOperation:  "E_INVALID_OPERATION",
	EOperationAborted:  "E_OPERATION_ABORTED",
	EInternalError:     "E_INTERNAL_ERROR",
	EUnknownSessionID:  "E_UNKNOWN_SESSION_ID",
	ENoFreeSessionID:   "E_NO_FREE_SESSION_ID",
	EUnknownObjectID:   "E_UNKNOWN_OBJECT_ID",
	ENoFreeObjectID:    "E_NO_FREE_OBJECT_ID",
	EObjectIsLocked:    "E_OBJECT_IS_LOCKED",
	ENoMoreData:        "E_NO_MORE_DATA",
	EWrongListItemType: "E_WRONG_LIST_ITEM_TYPE",
	EProgramIsPurged:   "E_PROGRAM_IS_PURGED",
	EInvalidParameter:  "E_INVALID_PARAMETER",
	ENoFreeMemory:      "E_NO_FREE_MEMORY",
	ENoFreeSpace:       "E_NO_FREE_SPACE",
	EAccessDenied:      "E_ACCESS_DENIED",
	EAlreadyExists:     "E_ALREADY_EXISTS",
	EDoesNotExist:      "E_DOES_NOT_EXIST",
	EInterrupted:       "E_INTERRUPTED",
	EIsDirectory:       "E_IS_DIRECTORY",
	ENotADirectory:     "E_NOT_A_DIRECTORY",
	EWouldBlock:        "E_WOULD_BLOCK",
	EOverflow:          "E_OVERFLOW",
	EBadFileDescriptor: "E_BAD_FILE_DESCRIPTOR",
	EOutOfRange:        "E_OUT_OF_RANGE",
	ENameTooLong:       "E_NAME_TOO_LONG",
	EInvalidSeek:       "E_INVALID_SEEK",
	ENotSupported:      "E_NOT_SUPPORTED",
	ETooManyOpenFiles:  "E_TOO_MANY_OPEN_FILES",
}

// String returns the protocol name of the code, e.g. "E_NO_MORE_DATA".
func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("<unknown>(%d)", uint8(c))
}

// Error is a server-reported failure: a human-readable message plus the
// numeric result code the server returned.
type Error struct {
	Message string
	Code    ErrorCode
}

// NewError creates an Error with the given message and code.
func NewError(message string, code ErrorCode) *Error {
	return &Error{Message: message, Code: code}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Message, e.Code, uint8(e.Code))
}

// Is allows errors.Is comparisons against another *Error by code.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// IsCode reports whether err wraps a protocol Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == code
}
