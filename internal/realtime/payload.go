package realtime

import (
	"context"

	"github.com/quillstone/realtime-bridge/internal/domain"
)

// buildPayload runs the subscription's read against the backing store and,
// when the query asks for it, computes pagination metadata. Single-item
// subscriptions yield one record, collection subscriptions a list; an empty
// result stays a JSON array rather than null.
func buildPayload(ctx context.Context, reader DataReader, metaProvider MetaProvider, sub *Subscription, acc domain.Accountability, schema *domain.Schema) (any, map[string]any, error) {
	var payload any
	if sub.SingleItem() {
		record, err := reader.ReadOne(ctx, sub.Collection, sub.Item, sub.Query, acc, schema)
		if err != nil {
			return nil, nil, err
		}
		payload = record
	} else {
		records, err := reader.ReadMany(ctx, sub.Collection, sub.Query, acc, schema)
		if err != nil {
			return nil, nil, err
		}
		if records == nil {
			records = []map[string]any{}
		}
		payload = records
	}

	var meta map[string]any
	if sub.Query.WantsMeta() {
		m, err := metaProvider.Meta(ctx, sub.Collection, sub.Query, acc, schema)
		if err != nil {
			return nil, nil, err
		}
		meta = m
	}
	return payload, meta, nil
}
