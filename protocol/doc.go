// Package protocol defines the wire-level contract of the RED remote-object
// protocol as consumed by the client runtime.
//
// The server exposes typed objects (strings, lists, files, pipes, directories,
// processes, scheduled programs) identified by opaque 16-bit object IDs. Every
// allocating or opening call is scoped to a session ID; sessions expire unless
// kept alive. Data moves in fixed-width chunks because every RPC has a fixed
// wire framing, which is why the chunk limits in this package are protocol
// contract rather than tuning knobs.
//
// The package contains three things:
//
//   - the error model: ErrorCode enumeration and the typed Error carrying a
//     message and the server-reported code
//   - the protocol enumerations and per-call chunk limits
//   - the Transport interface, the narrow surface through which the runtime
//     talks to the underlying RPC connection
//
// The Transport implementation (connection management, framing, reconnects,
// authentication) is an external collaborator and out of scope here.
package protocol
