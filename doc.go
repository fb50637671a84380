// Package brickv provides a pure Go client runtime for the RED Brick
// remote-object protocol.
//
// The runtime follows a sans-IO layout - it implements sessions, handle
// lifecycle and transfer logic only, with no wire or socket code. Consumers
// provide a protocol.Transport for the underlying RPC connection.
//
// # Architecture
//
// The module is organized into layers:
//
//   - session: session lease lifecycle with background keep-alive
//   - object: typed handles (String, List, File, Pipe, Directory, Process,
//     Program) built on a shared attach/detach/release lifecycle
//   - callback: fan-out of transport push-events to per-handle listeners
//   - protocol: wire-level types, error codes and the Transport interface
//   - transporttest: in-memory Transport for tests and demos
//
// # Basic Usage
//
//	// Create a session on your transport
//	sess, err := brickv.Connect(transport)
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	// Work with remote objects
//	f := object.NewFile(sess)
//	if err := f.Open("/etc/hostname", protocol.FileFlagReadOnly, 0, 0, 0); err != nil {
//	    return err
//	}
//	defer f.Release()
//
//	data, err := f.Read(int(f.Length()))
//
// Every handle is an io.Closer with deterministic, idempotent release
// semantics; there is no reliance on garbage-collector timing to free
// server-side references.
package brickv
