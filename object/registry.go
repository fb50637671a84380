package object

import (
	"fmt"

	"github.com/tfchina/brickv/protocol"
	"github.com/tfchina/brickv/session"
)

// attachFunc wraps an object ID carrying a known type tag in its handle type.
// On failure the object ID has been released; extras passed by the caller
// have not.
type attachFunc func(*session.Session, protocol.ObjectID) (Object, error)

// attachers maps the protocol's closed set of type tags to their handle
// constructors. The file tag needs a metadata probe to tell files and pipes
// apart, so it goes through AttachFileOrPipe.
var attachers = map[protocol.ObjectType]attachFunc{
	protocol.ObjectTypeString: func(s *session.Session, id protocol.ObjectID) (Object, error) {
		return attachString(s, id)
	},
	protocol.ObjectTypeList: func(s *session.Session, id protocol.ObjectID) (Object, error) {
		return attachList(s, id)
	},
	protocol.ObjectTypeFile: AttachFileOrPipe,
	protocol.ObjectTypeDirectory: func(s *session.Session, id protocol.ObjectID) (Object, error) {
		return attachDirectory(s, id)
	},
	protocol.ObjectTypeProcess: func(s *session.Session, id protocol.ObjectID) (Object, error) {
		return attachProcess(s, id)
	},
	protocol.ObjectTypeProgram: func(s *session.Session, id protocol.ObjectID) (Object, error) {
		return attachProgram(s, id)
	},
}

// attachByType wraps an object ID in the handle type selected by the
// server-reported type tag. An unknown tag releases the object ID and fails.
func attachByType(s *session.Session, id protocol.ObjectID, typ protocol.ObjectType) (Object, error) {
	attach, ok := attachers[typ]
	if !ok {
		releaseUnchecked(s, id)
		return nil, fmt.Errorf("object %d has unknown type tag %d", id, typ)
	}
	return attach(s, id)
}
