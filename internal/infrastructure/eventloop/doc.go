// Package eventloop provides the cooperative scheduler the session core
// runs on.
//
// The underlying MQTT transport delivers callbacks from its own
// goroutines. Rather than guard session state with locks, the bridge
// serialises every callback onto a single Loop goroutine: state mutated
// only from posted functions can never race. Blocking operations
// (connect handshakes, HTTP calls) stay off the loop and synchronise
// back through posted functions.
//
// Timer provides the delayed-task primitive used for the keepalive
// reconnect: one pending invocation per timer, superseded by Start,
// prevented by Cancel.
//
// # Usage
//
//	loop := eventloop.New()
//	defer loop.Close()
//
//	loop.Post(func() { state.connected = true })
//
//	t := eventloop.NewTimer(func() { refresh() })
//	t.Start(time.Hour)
package eventloop
