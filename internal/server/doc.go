// Package server implements the ops HTTP server using Echo framework.
//
// Routes: health (live/ready/version), metrics (Prometheus), API (status/events).
// The API surface is read-only; ledger mutation happens in-process only.
package server
