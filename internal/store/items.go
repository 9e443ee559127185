package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quillstone/realtime-bridge/internal/domain"
)

// ReadOne reads a single item by primary key under the query's field
// selection and filter. Missing or filtered-out items fail with
// domain.ErrNotFound.
func (s *PostgresStore) ReadOne(ctx context.Context, collection, key string, q domain.Query, acc domain.Accountability, schema *domain.Schema) (map[string]any, error) {
	col, err := s.authorizeRead(ctx, collection, acc, schema)
	if err != nil {
		return nil, err
	}
	if col.Primary == "" {
		return nil, fmt.Errorf("collection %q has no primary key: %w", collection, domain.ErrNotFound)
	}

	sel, err := selectColumns(col, q.Fields)
	if err != nil {
		return nil, err
	}

	b := &argBuilder{}
	// Text comparison sidesteps key type differences between collections.
	conds := []string{quoteIdent(col.Primary) + "::text = " + b.add(key)}
	filterConds, err := buildFilter(col, q.Filter, b)
	if err != nil {
		return nil, err
	}
	conds = append(conds, filterConds...)

	sql := "SELECT " + sel + " FROM " + quoteIdent(col.Name) +
		" WHERE " + strings.Join(conds, " AND ") + " LIMIT 1"

	rows, err := s.pool.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, fmt.Errorf("reading item: %w", err)
	}
	records, err := rowsToMaps(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("item %q in %q: %w", key, collection, domain.ErrNotFound)
	}
	return records[0], nil
}

// ReadMany reads the collection under the query's filter, search, sort and
// pagination.
func (s *PostgresStore) ReadMany(ctx context.Context, collection string, q domain.Query, acc domain.Accountability, schema *domain.Schema) ([]map[string]any, error) {
	col, err := s.authorizeRead(ctx, collection, acc, schema)
	if err != nil {
		return nil, err
	}

	sel, err := selectColumns(col, q.Fields)
	if err != nil {
		return nil, err
	}

	b := &argBuilder{}
	conds, err := buildFilter(col, q.Filter, b)
	if err != nil {
		return nil, err
	}
	if c := buildSearch(col, q.Search, b); c != "" {
		conds = append(conds, c)
	}
	orderBy, err := buildSort(col, q.Sort)
	if err != nil {
		return nil, err
	}

	sql := "SELECT " + sel + " FROM " + quoteIdent(col.Name)
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	if orderBy != "" {
		sql += " ORDER BY " + orderBy
	}
	if q.Limit > 0 {
		sql += " LIMIT " + b.add(q.Limit)
	}
	if q.Offset > 0 {
		sql += " OFFSET " + b.add(q.Offset)
	}

	rows, err := s.pool.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, fmt.Errorf("reading collection: %w", err)
	}
	return rowsToMaps(rows)
}

// Meta computes the counts the query asked for: total_count over the whole
// collection, filter_count under the query's filter and search.
func (s *PostgresStore) Meta(ctx context.Context, collection string, q domain.Query, acc domain.Accountability, schema *domain.Schema) (map[string]any, error) {
	col, err := s.authorizeRead(ctx, collection, acc, schema)
	if err != nil {
		return nil, err
	}

	wantTotal, wantFilter := false, false
	for _, name := range q.Meta {
		switch name {
		case "*":
			wantTotal, wantFilter = true, true
		case "total_count":
			wantTotal = true
		case "filter_count":
			wantFilter = true
		}
	}

	out := make(map[string]any, 2)
	if wantTotal {
		var n int64
		err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+quoteIdent(col.Name)).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("counting collection: %w", err)
		}
		out["total_count"] = n
	}
	if wantFilter {
		b := &argBuilder{}
		conds, err := buildFilter(col, q.Filter, b)
		if err != nil {
			return nil, err
		}
		if c := buildSearch(col, q.Search, b); c != "" {
			conds = append(conds, c)
		}

		sql := "SELECT COUNT(*) FROM " + quoteIdent(col.Name)
		if len(conds) > 0 {
			sql += " WHERE " + strings.Join(conds, " AND ")
		}
		var n int64
		if err := s.pool.QueryRow(ctx, sql, b.args...).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting filtered collection: %w", err)
		}
		out["filter_count"] = n
	}
	return out, nil
}

// authorizeRead resolves the collection from the schema overview and checks
// the role's read grant. Admin accountability skips the grant check.
func (s *PostgresStore) authorizeRead(ctx context.Context, collection string, acc domain.Accountability, schema *domain.Schema) (domain.Collection, error) {
	col, ok := schema.Collections[collection]
	if !ok {
		return domain.Collection{}, fmt.Errorf("collection %q: %w", collection, domain.ErrForbidden)
	}
	if acc.Admin {
		return col, nil
	}
	allowed, err := s.canRead(ctx, acc.Role, collection)
	if err != nil {
		return domain.Collection{}, err
	}
	if !allowed {
		return domain.Collection{}, fmt.Errorf("collection %q: %w", collection, domain.ErrForbidden)
	}
	return col, nil
}

func rowsToMaps(rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		record := make(map[string]any, len(fields))
		for i, fd := range fields {
			record[fd.Name] = normalizeValue(values[i])
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// normalizeValue rewrites driver values that would not JSON-encode the way
// clients expect. UUID columns decode as raw 16-byte arrays.
func normalizeValue(v any) any {
	if raw, ok := v.([16]byte); ok {
		return uuid.UUID(raw).String()
	}
	return v
}

// argBuilder collects positional query arguments.
type argBuilder struct {
	args []any
}

// add appends v and returns its placeholder.
func (b *argBuilder) add(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// selectColumns renders the SELECT list. Requested fields must exist in the
// collection; no request (or "*") selects every field in name order.
func selectColumns(col domain.Collection, requested []string) (string, error) {
	all := func() string {
		names := make([]string, 0, len(col.Fields))
		for name := range col.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			names[i] = quoteIdent(name)
		}
		return strings.Join(names, ", ")
	}

	if len(requested) == 0 {
		return all(), nil
	}

	seen := make(map[string]struct{}, len(requested))
	quoted := make([]string, 0, len(requested))
	for _, name := range requested {
		if name == "*" {
			return all(), nil
		}
		if _, ok := col.Fields[name]; !ok {
			return "", fmt.Errorf("field %q: %w", name, domain.ErrInvalidQuery)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		quoted = append(quoted, quoteIdent(name))
	}
	return strings.Join(quoted, ", "), nil
}

// buildFilter renders one SQL condition per filter entry. Field names are
// validated against the collection before they reach the SQL text; values
// only ever travel as bound arguments.
func buildFilter(col domain.Collection, filter map[string]any, b *argBuilder) ([]string, error) {
	if len(filter) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var conds []string
	for _, field := range fields {
		if _, ok := col.Fields[field]; !ok {
			return nil, fmt.Errorf("filter field %q: %w", field, domain.ErrInvalidQuery)
		}
		ident := quoteIdent(field)

		ops, ok := filter[field].(map[string]any)
		if !ok {
			// Bare values filter by equality.
			conds = append(conds, equalityCond(ident, filter[field], b))
			continue
		}

		opNames := make([]string, 0, len(ops))
		for op := range ops {
			opNames = append(opNames, op)
		}
		sort.Strings(opNames)

		for _, op := range opNames {
			cond, err := operatorCond(ident, op, ops[op], b)
			if err != nil {
				return nil, fmt.Errorf("filter field %q: %w", field, err)
			}
			conds = append(conds, cond)
		}
	}
	return conds, nil
}

func equalityCond(ident string, value any, b *argBuilder) string {
	if value == nil {
		return ident + " IS NULL"
	}
	return ident + " = " + b.add(value)
}

func operatorCond(ident, op string, value any, b *argBuilder) (string, error) {
	switch op {
	case "_eq":
		return equalityCond(ident, value, b), nil
	case "_neq":
		if value == nil {
			return ident + " IS NOT NULL", nil
		}
		return ident + " <> " + b.add(value), nil
	case "_gt":
		return ident + " > " + b.add(value), nil
	case "_gte":
		return ident + " >= " + b.add(value), nil
	case "_lt":
		return ident + " < " + b.add(value), nil
	case "_lte":
		return ident + " <= " + b.add(value), nil
	case "_in":
		list, err := filterList(value)
		if err != nil {
			return "", err
		}
		return ident + " = ANY(" + b.add(list) + ")", nil
	case "_nin":
		list, err := filterList(value)
		if err != nil {
			return "", err
		}
		return ident + " <> ALL(" + b.add(list) + ")", nil
	case "_null":
		if truthy(value) {
			return ident + " IS NULL", nil
		}
		return ident + " IS NOT NULL", nil
	case "_nnull":
		if truthy(value) {
			return ident + " IS NOT NULL", nil
		}
		return ident + " IS NULL", nil
	case "_contains":
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("operator _contains needs a string: %w", domain.ErrInvalidQuery)
		}
		return ident + "::text ILIKE " + b.add("%"+s+"%"), nil
	}
	return "", fmt.Errorf("operator %q: %w", op, domain.ErrInvalidQuery)
}

func filterList(value any) ([]any, error) {
	list, ok := value.([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("list operator needs a non-empty list: %w", domain.ErrInvalidQuery)
	}
	return list, nil
}

func truthy(value any) bool {
	v, ok := value.(bool)
	return ok && v
}

// buildSearch renders a case-insensitive match across the collection's text
// fields. Collections without text fields ignore search.
func buildSearch(col domain.Collection, search string, b *argBuilder) string {
	if search == "" {
		return ""
	}

	names := make([]string, 0, len(col.Fields))
	for name, f := range col.Fields {
		if isTextType(f.Type) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)

	placeholder := b.add("%" + search + "%")
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, quoteIdent(name)+" ILIKE "+placeholder)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func isTextType(dataType string) bool {
	switch dataType {
	case "text", "character varying", "character", "citext":
		return true
	}
	return false
}

// buildSort renders the ORDER BY list; a "-" prefix sorts descending.
func buildSort(col domain.Collection, sortFields []string) (string, error) {
	if len(sortFields) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(sortFields))
	for _, field := range sortFields {
		direction := " ASC"
		if strings.HasPrefix(field, "-") {
			field = field[1:]
			direction = " DESC"
		}
		if _, ok := col.Fields[field]; !ok {
			return "", fmt.Errorf("sort field %q: %w", field, domain.ErrInvalidQuery)
		}
		parts = append(parts, quoteIdent(field)+direction)
	}
	return strings.Join(parts, ", "), nil
}
