// Package tlsroots provides TLS material for the agent.
//
//   - roots.go: system roots plus a custom CA for reaching an upstream
//     origin served with a private certificate
//   - watcher.go: the agent's serving certificate, reloaded when renewed
//     on disk and refused once expired
package tlsroots
