// mediadrop/extract/engine.go
package extract

import (
	"context"
	"strings"
)

// Kind selects what the engine should produce from the source URL.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Valid reports whether the kind is one the engine understands.
func (k Kind) Valid() bool { return k == KindVideo || k == KindAudio }

// Result describes the file an extraction produced. Path points into the
// engine's scratch directory; the caller owns moving it somewhere durable.
type Result struct {
	Path      string
	Size      int64
	MediaType string
}

// ProgressFunc receives loosely-typed status updates at the engine's
// discretion. stage is a short human-readable phase name; percent is -1
// when the engine has no estimate.
type ProgressFunc func(stage string, percent float64)

// Engine is the narrow contract the coordinator drives. Implementations are
// long-running and must honor ctx cancellation on a best-effort basis.
type Engine interface {
	Extract(ctx context.Context, url string, kind Kind, onProgress ProgressFunc) (*Result, error)
}

// FailureKind classifies a terminal extraction error for subscribers.
type FailureKind string

const (
	// FailureAuthRequired covers sources that demand authentication
	// artifacts (cookies, logins) the engine does not have.
	FailureAuthRequired FailureKind = "auth_required"
	FailureUnavailable  FailureKind = "unavailable"
	FailureGeneric      FailureKind = "error"
)

// Classify maps an engine error message to a failure kind by matching the
// phrases the extractor family is known to emit.
func Classify(msg string) FailureKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "sign in") ||
		strings.Contains(lower, "login required") ||
		strings.Contains(lower, "use --cookies") ||
		strings.Contains(lower, "account") && strings.Contains(lower, "confirm"):
		return FailureAuthRequired
	case strings.Contains(lower, "video unavailable") ||
		strings.Contains(lower, "private video") ||
		strings.Contains(lower, "has been removed"):
		return FailureUnavailable
	default:
		return FailureGeneric
	}
}
