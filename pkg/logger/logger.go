package logger

import (
	"context"

	"go.uber.org/zap"

	"clubportal/pkg/trace"
)

// NewLogger builds the production logger shared by both binaries.
func NewLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l
}

// WithTrace returns l annotated with the trace id carried in ctx, if any.
func WithTrace(ctx context.Context, l *zap.Logger) *zap.Logger {
	if id := trace.FromContext(ctx); id != "" {
		return l.With(zap.String("trace_id", id))
	}
	return l
}
