// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/soriview/soriview/internal/domain"
)

// Repository defines the interface for persisting conversation history.
type Repository interface {
	// AppendEntry persists a conversation entry and returns it with the
	// assigned ID and creation time filled in.
	AppendEntry(ctx context.Context, entry *domain.Entry) (*domain.Entry, error)

	// RecentEntries retrieves up to limit entries for a user/session pair,
	// oldest first.
	RecentEntries(ctx context.Context, userID, sessionID string, limit int) ([]*domain.Entry, error)

	// CleanupExpiredEntries removes entries older than the TTL and reports
	// how many were deleted.
	CleanupExpiredEntries(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
