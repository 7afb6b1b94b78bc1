// Package handler provides HTTP request handlers for the shellkeep agent.
//
// Routes fall into three groups:
//
//   - page-facing: /api/pwa-state, /agent/v1/messages, /agent/v1/events
//   - operator: /agent/v1/status, /agent/v1/sync, /agent/v1/queue,
//     /agent/v1/activate, /agent/v1/push
//   - health: /health, /ready, /metrics
//
// Everything else is handed to the agent's interceptor, which proxies
// the application origin with offline fallbacks.
//
// Page-facing routes answer in the agent's message reply shape
// ({"success": ...}); operator and health routes use the Response envelope.
package handler
