// Package connection is the shellkeep-cli client side of the agent API.
//
//   - http.go: operator requests, envelope parsing, the message port
//   - socket.go: HTTP over a Unix socket for agents bound to unix://
package connection
