// Package server implements the HTTP request gateway that triggers streaming sessions,
// together with the monitoring endpoints (health, active streams, stats, metrics).
package server
