package model

import "context"

// RequestContext carries correlation and tracing information for the lifetime
// of a request. It is immutable after construction and safe for concurrent
// reads.
type RequestContext struct {
	CorrelationID string
	TraceID       string
	SpanID        string
	ClientIP      string
	UserAgent     string
	Locale        string
	// SessionID is the table view or form session addressed by the request,
	// if any.
	SessionID string
}

// WithSession returns a copy of the context scoped to the given session id.
func (rc *RequestContext) WithSession(id string) *RequestContext {
	cp := *rc
	cp.SessionID = id
	return &cp
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns nil
// if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}
