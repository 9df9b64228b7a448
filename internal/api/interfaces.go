package api

import "context"

// Pinger is implemented by session stores that depend on an external service
type Pinger interface {
	Ping(ctx context.Context) error
}
