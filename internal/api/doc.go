// Package api serves the adapter over HTTP and WebSocket.
//
// Routes:
//
//	GET  /health                 dependency health, 503 when degraded
//	GET  /metrics                Prometheus exposition
//	GET  /history/things/{id}    journal query (?kind=&limit=)
//	*    /things/{id}            WebSocket upgrade when requested
//	*    /, /.well-known/wot, /things/...  Web Thing protocol router
//
// Protocol requests are converted to router.Request; a body larger than
// api.max_body_size is flagged as overflow and answered with 400 by the
// router. The Hub implements the publisher's duplex hub, assigning each
// connection a UUID.
//
//	server, err := api.New(deps)
//	pub.SetHub(server.Hub())
//	server.Start(ctx)
//	defer server.Close()
package api
