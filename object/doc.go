// Package object implements the client-side handle lifecycle for RED
// remote objects and the typed object graph built on it.
//
// # Handle state machine
//
// Every typed object embeds a Handle, the client-side representative of one
// server-side object:
//
//	Unattached → Attach → Attached → Detach → Unattached
//	                          │
//	                          └─ Release → Unattached (server notified)
//
// Attach binds the handle to a server-reported object ID, arms a release
// guard, installs the type's push-event subscriptions and optionally refreshes
// all fields. Detach unbinds without touching the server and hands the object
// ID back to the caller, e.g. to re-type it into a more specific handle.
// Release detaches and additionally asks the server to free the object, on a
// best-effort basis: transport failures during release are logged and
// swallowed because the object is gone from the client's perspective either
// way.
//
// An attached handle implies exactly one outstanding server reference. The
// release guard makes freeing that reference deterministic: every handle is an
// io.Closer and Close is an idempotent Release. There is no reliance on
// garbage-collector timing.
//
// # Ownership
//
// Composite objects own their sub-handles. A file owns its name string, a
// list owns its decoded items, a process owns its command strings, lists and
// stdio files. Detaching or refreshing the containing handle releases the
// previously owned sub-handles. Fetching a composite field set releases every
// already-obtained sub-object before reporting a partial failure, so a decode
// error never leaks server references.
//
// # Concurrency
//
// Handles are owned by one goroutine. The exception is state driven by push
// events (async transfer progress, process and program state), which arrives
// on the transport's event goroutine and is therefore mutex-guarded within
// the affected types.
package object
