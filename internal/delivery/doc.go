// Package delivery implements the transports that learn about new
// emails: a push stream over server-sent events, an adaptive polling
// engine, and an auto mode that probes the stream and falls back to
// polling. Transports only move raw envelope events; verification,
// decryption and deduplication happen upstream.
package delivery
