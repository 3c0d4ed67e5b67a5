// Package parser implements an incremental HTTP/1.x request parser fed
// one byte per poll.
//
// The parser is a resumable state machine:
//
//	ReadMethod → ReadURI → DiscardVersion → DiscardHeadersPreHost
//	DiscardHeadersPreHost ⇄ ReadHost / ReadContentLength ⇄ DiscardHeadersPostHost
//	→ ReadContent
//
// Only the method, URI, Host value and body are kept, each in a buffer of
// fixed capacity allocated by New. Other headers are discarded except
// Content-Length, which lets a request complete as soon as its body has
// arrived. Without Content-Length the first idle poll after the headers
// completes the request.
//
// Any part that exceeds its buffer marks the request Overflow. The parser
// keeps consuming without storing and still completes, so the transport
// can answer 400 instead of acting on truncated input.
//
// Usage:
//
//	p := parser.New(parser.Config{Limits: parser.DefaultLimits()})
//	for {
//	    var st parser.Status
//	    if b, ok := poll(); ok {
//	        st = p.Feed(b)
//	    } else {
//	        st = p.Idle()
//	    }
//	    if st == parser.Complete {
//	        handle(p.Request())
//	        p.Reset()
//	    }
//	}
package parser
