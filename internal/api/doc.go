// Package api implements the read-only status API and WebSocket live feed.
//
// This package provides:
//   - GET /api/v1/health: liveness plus dependency checks
//   - GET /api/v1/session: session state, topics, and counters
//   - GET /api/v1/messages: stored readings (?feed_id=&limit=)
//   - GET /api/v1/events: session lifecycle events (?limit=)
//   - GET /api/v1/metrics: runtime, transport, WebSocket, and database stats
//   - GET /api/v1/ws: WebSocket; subscribe to channel "feed.message"
//
// Middleware (request ID, logging, recovery, CORS, body limit) wraps every route.
//
// # Graceful Degradation
//
// History and transport are optional. Without a message store, /messages and
// /events answer 503; everything else keeps working.
package api
