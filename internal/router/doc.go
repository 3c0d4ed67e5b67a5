// Package router dispatches Web Thing REST requests.
//
// Router.Serve is a pure function of a transport-independent Request:
// it validates the Host header, answers CORS preflights, maps the method
// and path onto a device and returns a Response carrying the status,
// headers and JSON body. Both the net/http API and the raw TCP poll
// transport serve the same Router, so they answer identically.
//
// Route table:
//
//	GET    /, /.well-known/wot                  things list
//	GET    /things/{id}                         description
//	GET    /things/{id}/properties              all property values
//	GET    /things/{id}/properties/{name}       one property value
//	PUT    /things/{id}/properties/{name}       write a property
//	GET    /things/{id}/actions[/{name}]        invocation queue
//	POST   /things/{id}/actions[/{name}]        request an action
//	GET    /things/{id}/actions/{name}/{inv}    one invocation
//	DELETE /things/{id}/actions/{name}/{inv}    cancel an invocation
//	GET    /things/{id}/events[/{name}]         queued events
//	OPTIONS *                                   204
package router
