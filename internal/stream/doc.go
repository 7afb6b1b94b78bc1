// Package stream manages long-lived server-sent event connections.
//
// A Registry holds one Connection per endpoint. Connections open lazily
// when the first listener arrives, close when the last one leaves, defer
// their teardown while the host is backgrounded, and reconnect a bounded
// number of times after unexpected closure.
package stream
