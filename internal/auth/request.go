package auth

import (
	"context"

	"github.com/learngate/apiserver/types"
)

type contextKey struct{}

// WithContext stows the resolved auth context in a request context.
func WithContext(ctx context.Context, authCtx *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, authCtx)
}

// FromContext returns the auth context for the request. When none was
// resolved it returns an anonymous context, so callers never branch on nil.
func FromContext(ctx context.Context) *Context {
	if authCtx, ok := ctx.Value(contextKey{}).(*Context); ok && authCtx != nil {
		return authCtx
	}
	return &Context{session: types.Anonymous()}
}
