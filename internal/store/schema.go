package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/quillstone/realtime-bridge/internal/domain"
)

// Tables owned by the bridge itself, never exposed as collections.
var systemTables = map[string]struct{}{
	"schema_migrations": {},
	"app_users":         {},
	"app_permissions":   {},
}

// Snapshot introspects the public schema and returns a fresh overview of the
// content collections. It runs on every call; the overview is never cached
// here, matching the dispatch rule that reads see current structure.
func (s *PostgresStore) Snapshot(ctx context.Context) (*domain.Schema, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.table_name, c.column_name, c.data_type, c.is_nullable
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = 'public' AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position
	`)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	defer rows.Close()

	schema := &domain.Schema{Collections: make(map[string]domain.Collection)}
	for rows.Next() {
		var table, column, dataType, nullable string
		if err := rows.Scan(&table, &column, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scanning column row: %w", err)
		}
		if _, system := systemTables[table]; system {
			continue
		}

		col, ok := schema.Collections[table]
		if !ok {
			col = domain.Collection{
				Name:   table,
				Fields: make(map[string]domain.Field),
			}
		}
		col.Fields[column] = domain.Field{
			Name:     column,
			Type:     dataType,
			Nullable: strings.EqualFold(nullable, "YES"),
		}
		schema.Collections[table] = col
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating column rows: %w", err)
	}

	if err := s.fillPrimaryKeys(ctx, schema); err != nil {
		return nil, err
	}
	return schema, nil
}

func (s *PostgresStore) fillPrimaryKeys(ctx context.Context, schema *domain.Schema) error {
	rows, err := s.pool.Query(ctx, `
		SELECT tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_name = tc.constraint_name
			AND kcu.table_schema = tc.table_schema
		WHERE tc.table_schema = 'public' AND tc.constraint_type = 'PRIMARY KEY'
	`)
	if err != nil {
		return fmt.Errorf("querying primary keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return fmt.Errorf("scanning primary key row: %w", err)
		}
		col, ok := schema.Collections[table]
		if !ok {
			continue
		}
		// Composite keys keep the first column reported; single-column
		// keys are the supported shape.
		if col.Primary == "" {
			col.Primary = column
			schema.Collections[table] = col
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating primary key rows: %w", err)
	}

	// A collection without a primary key cannot serve single-item
	// subscriptions; fall back to "id" when the column exists.
	for name, col := range schema.Collections {
		if col.Primary == "" {
			if _, ok := col.Fields["id"]; ok {
				col.Primary = "id"
				schema.Collections[name] = col
			}
		}
	}
	return nil
}
