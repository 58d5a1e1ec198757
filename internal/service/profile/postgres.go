package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	model "github.com/soulbot/soulbot/backend/internal/model/profile"
)

var ErrLookup = errors.New("profile lookup failed")

// Schema names the row-store table and the columns mapped onto a profile.
type Schema struct {
	Table         string
	NameColumn    string
	ContactColumn string
	NotesColumn   string
	OrderColumn   string
}

// DefaultSchema matches the patients table the intake form writes to.
func DefaultSchema() Schema {
	return Schema{
		Table:         "patients",
		NameColumn:    "full_name",
		ContactColumn: "email",
		NotesColumn:   "medical_problem",
		OrderColumn:   "created_at",
	}
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLookup reads the newest profile row through a pgx pool.
type PostgresLookup struct {
	db    querier
	query string
}

// Connect opens a pool against databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: open pool: %v", ErrLookup, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrLookup, err)
	}
	return pool, nil
}

// NewPostgresLookup builds a lookup over pool using schema; empty schema fields fall back to DefaultSchema.
func NewPostgresLookup(pool *pgxpool.Pool, schema Schema) *PostgresLookup {
	return newPostgresLookup(pool, schema)
}

func newPostgresLookup(db querier, schema Schema) *PostgresLookup {
	return &PostgresLookup{db: db, query: buildQuery(withDefaults(schema))}
}

// MostRecent implements model.Lookup.
func (l *PostgresLookup) MostRecent(ctx context.Context) (*model.Profile, error) {
	var p model.Profile
	err := l.db.QueryRow(ctx, l.query).Scan(&p.Name, &p.ContactAddress, &p.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookup, err)
	}
	return &p, nil
}

func withDefaults(s Schema) Schema {
	d := DefaultSchema()
	if strings.TrimSpace(s.Table) == "" {
		s.Table = d.Table
	}
	if strings.TrimSpace(s.NameColumn) == "" {
		s.NameColumn = d.NameColumn
	}
	if strings.TrimSpace(s.ContactColumn) == "" {
		s.ContactColumn = d.ContactColumn
	}
	if strings.TrimSpace(s.NotesColumn) == "" {
		s.NotesColumn = d.NotesColumn
	}
	if strings.TrimSpace(s.OrderColumn) == "" {
		s.OrderColumn = d.OrderColumn
	}
	return s
}

func buildQuery(s Schema) string {
	col := func(name string) string {
		return fmt.Sprintf("COALESCE(%s::text, '')", pgx.Identifier{name}.Sanitize())
	}
	return fmt.Sprintf(
		"SELECT %s, %s, %s FROM %s ORDER BY %s DESC LIMIT 1",
		col(s.NameColumn),
		col(s.ContactColumn),
		col(s.NotesColumn),
		pgx.Identifier(strings.Split(s.Table, ".")).Sanitize(),
		pgx.Identifier{s.OrderColumn}.Sanitize(),
	)
}
