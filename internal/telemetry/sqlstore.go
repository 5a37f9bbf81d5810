package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devghori1264/feederbalancer/internal/models"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour of the durable store.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// tsLayout is fixed width so text comparison orders like time.
const tsLayout = "2006-01-02T15:04:05.000000Z"

// Row is a durable telemetry record.
type Row struct {
	ID     int64  `json:"id"`
	NodeID string `json:"node_id"`
	models.TelemetryPoint
}

// SQLStore persists telemetry rows keyed by an autoincrement id and
// indexed by node id and timestamp.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to dsn with the driver matching dialect and migrates the
// schema.
func Open(dialect Dialect, dsn string) (*SQLStore, error) {
	switch dialect {
	case SQLite, Postgres:
	default:
		return nil, fmt.Errorf("unsupported telemetry driver %q", dialect)
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	s, err := NewSQLStore(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an existing handle and ensures the schema exists.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate telemetry: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	idCol := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	realType := "REAL"
	if s.dialect == Postgres {
		idCol = "id BIGSERIAL PRIMARY KEY"
		realType = "DOUBLE PRECISION"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS telemetry (
		` + idCol + `,
		node_id TEXT NOT NULL,
		ts TEXT NOT NULL,
		vuf ` + realType + ` NOT NULL,
		v_a INTEGER NOT NULL,
		v_b INTEGER NOT NULL,
		v_c INTEGER NOT NULL,
		neutral_current ` + realType + ` NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_node_id ON telemetry(node_id)`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_ts ON telemetry(ts)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks the connection is alive.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Insert stores one point for nodeID.
func (s *SQLStore) Insert(ctx context.Context, nodeID string, pt models.TelemetryPoint) error {
	query := s.rebind(`INSERT INTO telemetry (node_id, ts, vuf, v_a, v_b, v_c, neutral_current) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		nodeID, formatTS(pt.Timestamp), pt.VUF, pt.VA, pt.VB, pt.VC, pt.NeutralCurrent,
	)
	if err != nil {
		return fmt.Errorf("insert telemetry: %w", err)
	}
	return nil
}

// Range returns the newest limit points of nodeID with from <= ts <= to
// (nil bounds are open), in ascending timestamp order.
func (s *SQLStore) Range(ctx context.Context, nodeID string, from, to *time.Time, limit int) ([]models.TelemetryPoint, error) {
	var (
		conds = []string{"node_id = ?"}
		args  = []any{nodeID}
	)
	if from != nil {
		conds = append(conds, "ts >= ?")
		args = append(args, formatTS(*from))
	}
	if to != nil {
		conds = append(conds, "ts <= ?")
		args = append(args, formatTS(*to))
	}
	args = append(args, limit)
	query := s.rebind(`SELECT id, node_id, ts, vuf, v_a, v_b, v_c, neutral_current FROM telemetry WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY ts DESC, id DESC LIMIT ?`)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	points := make([]models.TelemetryPoint, len(rows))
	for i, r := range rows {
		points[len(rows)-1-i] = r.TelemetryPoint
	}
	return points, nil
}

// Recent lists the newest limit rows across all nodes, newest first.
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]Row, error) {
	query := s.rebind(`SELECT id, node_id, ts, vuf, v_a, v_b, v_c, neutral_current FROM telemetry ORDER BY ts DESC, id DESC LIMIT ?`)
	return s.query(ctx, query, limit)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query telemetry: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var (
			r  Row
			ts string
		)
		if err := rows.Scan(&r.ID, &r.NodeID, &ts, &r.VUF, &r.VA, &r.VB, &r.VC, &r.NeutralCurrent); err != nil {
			return nil, fmt.Errorf("scan telemetry: %w", err)
		}
		if r.Timestamp, err = time.Parse(tsLayout, ts); err != nil {
			return nil, fmt.Errorf("parse telemetry ts %q: %w", ts, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// rebind rewrites ? placeholders as $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}
