// Package httpserver provides the HTTP/HTTPS server for the shellkeep agent.
//
// The server fronts the application origin. Pages talk to it exactly as
// they would to the origin, and the agent's interceptor adds offline
// behavior underneath:
//
//   - Page endpoints: /api/pwa-state, /agent/v1/messages, /agent/v1/events
//   - Operator endpoints: /agent/v1/* (optionally behind a network ACL)
//   - Health endpoints: /health, /ready, /metrics
//   - Everything else: proxied to the upstream with cache fallback
//
// Middleware chain: Recover, RequestID, CORS, RateLimit, Audit.
package httpserver
