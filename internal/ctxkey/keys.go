// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

// LoggerKey is the context key type for the enriched per-call logger.
// Carries qualified_tool/request_id fields through the pipeline.
type LoggerKey struct{}

// RequestIDKey is the context key type for the generated per-call request id.
type RequestIDKey struct{}
