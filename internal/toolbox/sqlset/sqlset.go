// Package sqlset serves a toolbox-style YAML toolset straight from a
// PostgreSQL database. It stands in for the remote registry service in local
// development.
package sqlset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"gopkg.in/yaml.v3"

	"github.com/smartsearch/corporate-agent/internal/toolbox"
)

const (
	KindSQL        = "postgres-sql"
	KindListTables = "postgres-list-tables"
)

// listTablesStatement describes every user table with its columns.
const listTablesStatement = `
SELECT c.table_schema, c.table_name,
       json_agg(json_build_object('column', c.column_name, 'type', c.data_type) ORDER BY c.ordinal_position) AS columns
FROM information_schema.columns c
WHERE c.table_schema NOT IN ('pg_catalog', 'information_schema')
GROUP BY c.table_schema, c.table_name
ORDER BY c.table_schema, c.table_name`

// Tool is one entry of the tools section.
type Tool struct {
	Kind        string              `yaml:"kind"`
	Source      string              `yaml:"source"`
	Description string              `yaml:"description"`
	Statement   string              `yaml:"statement"`
	Parameters  []toolbox.Parameter `yaml:"parameters"`
}

// File is the parsed toolset definition.
type File struct {
	Tools    map[string]Tool     `yaml:"tools"`
	Toolsets map[string][]string `yaml:"toolsets"`
}

// Parse decodes and checks a toolset definition.
func Parse(b []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse toolset file: %w", err)
	}
	for name, t := range f.Tools {
		switch t.Kind {
		case KindSQL:
			if strings.TrimSpace(t.Statement) == "" {
				return nil, fmt.Errorf("tool %q has no statement", name)
			}
		case KindListTables:
		default:
			return nil, fmt.Errorf("tool %q has unsupported kind %q", name, t.Kind)
		}
	}
	for set, names := range f.Toolsets {
		for _, n := range names {
			if _, ok := f.Tools[n]; !ok {
				return nil, fmt.Errorf("toolset %q references unknown tool %q", set, n)
			}
		}
	}
	return &f, nil
}

// Open loads the toolset file and connects to the database.
func Open(ctx context.Context, path, dsn string) (*Backend, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read toolset file: %w", err)
	}
	f, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, fmt.Errorf("toolset database dsn is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open toolset db: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping toolset db: %w", err)
	}
	return New(db, f), nil
}

// Backend executes the toolset's statements. It holds no credential of its
// own, so every dial returns the same backend.
type Backend struct {
	db   *sql.DB
	file *File
}

func New(db *sql.DB, f *File) *Backend {
	return &Backend{db: db, file: f}
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) Dial(context.Context) (toolbox.Backend, error) {
	return b, nil
}

func (b *Backend) LoadToolset(_ context.Context, toolset string) (*toolbox.Manifest, error) {
	names, ok := b.file.Toolsets[toolset]
	if !ok {
		return nil, fmt.Errorf("toolset %q is not defined", toolset)
	}
	m := &toolbox.Manifest{ServerVersion: "sqlset", Tools: make(map[string]toolbox.Operation, len(names))}
	for _, n := range names {
		t := b.file.Tools[n]
		params := t.Parameters
		if params == nil {
			params = []toolbox.Parameter{}
		}
		m.Tools[n] = toolbox.Operation{Name: n, Description: t.Description, Parameters: params}
	}
	return m, nil
}

func (b *Backend) Invoke(ctx context.Context, operation string, args map[string]any) (json.RawMessage, error) {
	t, ok := b.file.Tools[operation]
	if !ok {
		return nil, fmt.Errorf("%w: %s", toolbox.ErrUnknownOperation, operation)
	}

	statement := t.Statement
	if t.Kind == KindListTables {
		statement = listTablesStatement
	}

	params := make([]any, 0, len(t.Parameters))
	for _, p := range t.Parameters {
		v, ok := args[p.Name]
		if !ok && p.IsRequired() {
			return nil, fmt.Errorf("%w: %s: missing parameter %q", toolbox.ErrOperationFailed, operation, p.Name)
		}
		params = append(params, v)
	}

	rows, err := b.db.QueryContext(ctx, statement, params...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", toolbox.ErrOperationFailed, operation, err)
	}
	defer rows.Close()

	records, err := scan(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", toolbox.ErrOperationFailed, operation, err)
	}
	return json.Marshal(records)
}

func scan(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	numeric := numericColumns(rows, len(cols))
	records := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			v := normalise(values[i])
			if numeric[i] {
				v = numberOf(v)
			}
			rec[c] = v
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// numericColumns flags NUMERIC and DECIMAL columns, which drivers such as
// pgx hand back as strings to keep their precision.
func numericColumns(rows *sql.Rows, n int) []bool {
	flags := make([]bool, n)
	types, err := rows.ColumnTypes()
	if err != nil {
		return flags
	}
	for i, ct := range types {
		switch strings.ToUpper(ct.DatabaseTypeName()) {
		case "NUMERIC", "DECIMAL":
			flags[i] = true
		}
	}
	return flags
}

// numberOf turns the string form of a numeric column into a JSON number,
// digits unchanged.
func numberOf(v any) any {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case json.RawMessage:
		s = strings.TrimSpace(string(t))
	default:
		return v
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil || !json.Valid([]byte(s)) {
		return v
	}
	return json.Number(s)
}

func normalise(v any) any {
	switch t := v.(type) {
	case []byte:
		if json.Valid(t) {
			return json.RawMessage(t)
		}
		return string(t)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	}
	return v
}

var (
	_ toolbox.Backend = (*Backend)(nil)
	_ toolbox.Dialer  = (*Backend)(nil)
)
