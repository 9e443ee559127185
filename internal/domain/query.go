package domain

const (
	// DefaultLimit applies when a collection query does not specify one.
	DefaultLimit = 100
	// MaxLimit caps client-supplied limits.
	MaxLimit = 250
)

// Query is the sanitized query specification attached to a subscription.
// It shapes collection reads and restricts single-item reads to a field set.
type Query struct {
	Fields []string       `json:"fields,omitempty"`
	Filter map[string]any `json:"filter,omitempty"`
	Sort   []string       `json:"sort,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Offset int            `json:"offset,omitempty"`
	Search string         `json:"search,omitempty"`
	Meta   []string       `json:"meta,omitempty"`
}

// Normalize returns a copy with defaults applied and unusable values
// dropped. Applied once at the protocol boundary; the stored subscription
// query is always normalized.
func (q Query) Normalize() Query {
	out := q

	if out.Limit <= 0 {
		out.Limit = DefaultLimit
	}
	if out.Limit > MaxLimit {
		out.Limit = MaxLimit
	}
	if out.Offset < 0 {
		out.Offset = 0
	}

	out.Fields = dropEmpty(q.Fields)
	out.Sort = dropEmpty(q.Sort)
	out.Meta = dropEmpty(q.Meta)

	return out
}

// WantsMeta reports whether the query requests meta information.
func (q Query) WantsMeta() bool {
	return len(q.Meta) > 0
}

func dropEmpty(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
