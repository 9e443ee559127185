package realtime

import (
	"context"

	"github.com/quillstone/realtime-bridge/internal/domain"
)

// DataReader performs access-controlled reads against the data-query engine.
// Implementations report domain.ErrForbidden and domain.ErrNotFound through
// the error chain.
type DataReader interface {
	// ReadOne reads a single item by key, shaped by q.
	ReadOne(ctx context.Context, collection, key string, q domain.Query, acc domain.Accountability, schema *domain.Schema) (map[string]any, error)

	// ReadMany reads the collection under q (filter, sort, pagination).
	ReadMany(ctx context.Context, collection string, q domain.Query, acc domain.Accountability, schema *domain.Schema) ([]map[string]any, error)
}

// MetaProvider computes meta information (counts) for a query. Only invoked
// when the query requests meta.
type MetaProvider interface {
	Meta(ctx context.Context, collection string, q domain.Query, acc domain.Accountability, schema *domain.Schema) (map[string]any, error)
}

// AccountabilityRefresher re-resolves a connection's permission context.
// Called before every dispatch so pushes reflect permission changes made
// after subscribe time. Fails with domain.ErrExpired when the identity no
// longer resolves.
type AccountabilityRefresher interface {
	Refresh(ctx context.Context, acc domain.Accountability) (domain.Accountability, error)
}

// SchemaProvider returns the current schema overview. The overview is
// eventually consistent; callers fetch a fresh one per operation and never
// cache it across dispatches.
type SchemaProvider interface {
	Snapshot(ctx context.Context) (*domain.Schema, error)
}
