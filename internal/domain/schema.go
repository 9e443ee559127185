package domain

// Schema is a point-in-time overview of the tracked collections. Providers
// rebuild it on every call; consumers must not hold one across dispatches.
type Schema struct {
	Collections map[string]Collection `json:"collections"`
}

// Collection describes one tracked collection.
type Collection struct {
	Name    string           `json:"name"`
	Primary string           `json:"primary"`
	Fields  map[string]Field `json:"fields"`
}

// Field describes one column of a collection.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// HasCollection reports whether the overview contains the named collection.
func (s *Schema) HasCollection(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Collections[name]
	return ok
}

// HasField reports whether the named collection contains the named field.
func (s *Schema) HasField(collection, field string) bool {
	if s == nil {
		return false
	}
	c, ok := s.Collections[collection]
	if !ok {
		return false
	}
	_, ok = c.Fields[field]
	return ok
}

// CollectionNames returns the names of all collections in the overview.
func (s *Schema) CollectionNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Collections))
	for name := range s.Collections {
		names = append(names, name)
	}
	return names
}
