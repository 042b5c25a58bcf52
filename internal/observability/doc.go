// Package observability provides logging and metrics for the Voice Live
// bridge service.
//
// Logging is built on log/slog with a redacting handler that strips API keys
// and tokens from records before they are written. Metrics are Prometheus
// collectors covering session lifecycle, event relay volume, audio volume,
// and function-call outcomes; they are exposed through the gateway's
// /metrics endpoint.
package observability
