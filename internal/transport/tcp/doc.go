// Package tcp is the poll transport: a raw TCP listener serving one
// client at a time, read one byte per poll into the incremental parser.
//
// Each scheduler Tick accepts a waiting client if none is connected,
// then reads until the parser completes a request, the per-poll read
// deadline expires or the byte budget is spent. A completed request is
// answered through the Handler with an HTTP/1.1 response carrying
// Connection: close, and the client is disconnected.
package tcp
