package interfaces

import (
	"context"

	"carebridge/pkg/types"
)

// DocumentStore is the persistence collaborator: a generic document store
// reached through create / find / update / delete-by-filter operations.
// ARCHITECTURAL DISCOVERY: Core components never depend on it for correctness;
// it backs notifications, analytics, accounts and reminders only
type DocumentStore interface {
	// Insert stores doc in collection and returns the generated id
	Insert(ctx context.Context, collection string, doc types.Document) (string, error)

	// Find returns records matching filter, newest first unless opts say otherwise
	Find(ctx context.Context, collection string, filter types.Filter, opts types.FindOptions) ([]*types.Record, error)

	// Update merges patch into every matching record and returns the matched count
	Update(ctx context.Context, collection string, filter types.Filter, patch types.Document) (int64, error)

	// Delete removes matching records and returns the deleted count
	Delete(ctx context.Context, collection string, filter types.Filter) (int64, error)

	// Count returns the number of matching records
	Count(ctx context.Context, collection string, filter types.Filter) (int64, error)

	// HealthCheck verifies database connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close closes the database connection and cleans up resources
	Close() error
}
