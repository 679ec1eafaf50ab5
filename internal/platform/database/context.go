package database

import "context"

type clientContextKey struct{}

// WithClient returns a copy of ctx carrying client.
func WithClient(ctx context.Context, client Client) context.Context {
	return context.WithValue(ctx, clientContextKey{}, client)
}

// ClientFromContext returns the request's data client, or nil.
func ClientFromContext(ctx context.Context) Client {
	c, _ := ctx.Value(clientContextKey{}).(Client)
	return c
}
