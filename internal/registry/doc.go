// Package registry implements the service registry dumpsys talks to.
//
// Overview
// A Registry is a namespace of uniquely named services. It can enumerate the
// names it knows about (List) and resolve a single name into a live Service
// handle (Check). A name, which can't be resolved, is not an error: the
// service simply is not running.
//
// The Dir registry keeps a namespace in a directory. Every registered service
// owns a unix socket <dir>/<name>.sock created by Listen. Two namespaces,
// normal and hardware services, are just two directories.
//
// Wire protocol:
//
//	client                                 server (Server.Serve)
//	  |  {"args":["-a","b"]}\n  ------------> |
//	  |                                       | Dumper.Dump(ctx, w, args)
//	  | <------------- 'd' len  dump bytes    |
//	  | <------------- 'd' len  dump bytes    |
//	  | <------------- 's' len  {"status":0}  |
//
// Every frame is a one byte type, big endian uint32 length and the payload.
// Data frames are copied verbatim to the writer passed to Service.Dump, the
// final status frame ends the call. A non-zero status is returned as
// *CallError. A connection closed without a request is a liveness probe.
//
// Invariants:
//   - Names are non-empty and never contain a slash.
//   - At most one Server per name and directory is accepting at a time.
//   - List returns names sorted, as the directory listing does.
package registry
