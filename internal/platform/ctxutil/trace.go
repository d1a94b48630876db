// Package ctxutil carries per-request identifiers through a context so log
// lines from the transport, selector and engines can be joined up.
package ctxutil

import "context"

type requestKey struct{}

// Request identifies one inbound predict or health call.
type Request struct {
	RequestID string
	TraceID   string
}

func WithRequest(ctx context.Context, r Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// RequestFrom returns the identifiers stored by WithRequest.
func RequestFrom(ctx context.Context) (Request, bool) {
	if ctx == nil {
		return Request{}, false
	}
	r, ok := ctx.Value(requestKey{}).(Request)
	return r, ok
}

// LogFields returns key/value pairs for the stored identifiers, or nil.
func LogFields(ctx context.Context) []interface{} {
	r, ok := RequestFrom(ctx)
	if !ok {
		return nil
	}
	fields := []interface{}{"request_id", r.RequestID}
	if r.TraceID != "" {
		fields = append(fields, "trace_id", r.TraceID)
	}
	return fields
}
