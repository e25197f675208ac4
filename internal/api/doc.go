// Package api implements the HTTP control plane and WebSocket event stream
// for the udon daemon.
//
// This package provides:
//   - REST endpoints to start flash, reboot and redownload runs
//   - Supervisor status and run history queries
//   - A WebSocket hub that streams flasher output, progress and device events
//   - Optional HS256 bearer token authentication
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server never talks to the flasher directly. Commands go through a
// Controller (the flash supervisor) and everything the supervisor reports
// reaches WebSocket clients through the Hub, which is itself a flash.Sink
// registered with the supervisor.
//
// # Security
//
// When security.jwt.secret is set every route except /health requires a
// bearer token. Browsers cannot set headers on WebSocket upgrades, so /ws
// also accepts the token in the "token" query parameter. Without a secret
// the API is open and should stay bound to loopback.
package api
