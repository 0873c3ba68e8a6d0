package middleware

import (
	"context"

	"github.com/angelmondragon/miravo-storefront/internal/storefront"
)

type contextKey string

const (
	ctxClient contextKey = "storefront_client"
)

// ClientFromContext returns the storefront runtime attached by ClientContext.
func ClientFromContext(ctx context.Context) *storefront.Client {
	if ctx == nil {
		return nil
	}
	if c, ok := ctx.Value(ctxClient).(*storefront.Client); ok {
		return c
	}
	return nil
}

// WithClient injects the storefront runtime into the context.
func WithClient(ctx context.Context, c *storefront.Client) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxClient, c)
}

// UserIDFromContext returns the signed-in user of the request's runtime.
func UserIDFromContext(ctx context.Context) string {
	c := ClientFromContext(ctx)
	if c == nil {
		return ""
	}
	return userIDOf(c)
}
