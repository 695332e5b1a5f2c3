// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/clinicore/vigil/internal/logging"
)

// Querier is the database surface the store needs. Satisfied by *sql.DB
// and by the timed connection wrapper in the database package.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DuckDBStore implements Store using DuckDB for persistent storage.
// Suitable for production use; the in-memory store exists for tests.
type DuckDBStore struct {
	db  Querier
	mu  sync.RWMutex
	seq atomic.Int64
}

// NewDuckDBStore creates a DuckDB-backed audit store and ensures the
// audit_records table exists. The sequence counter is seeded from the
// table so restarts keep total order.
func NewDuckDBStore(ctx context.Context, db Querier) (*DuckDBStore, error) {
	s := &DuckDBStore{db: db}
	if err := s.createTable(ctx); err != nil {
		return nil, err
	}
	if err := s.seedSeq(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DuckDBStore) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS audit_records (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			seq BIGINT NOT NULL,

			actor_id BIGINT,
			actor_username TEXT,

			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id BIGINT NOT NULL,
			changes JSON NOT NULL,

			access_id BIGINT,
			access_code TEXT,
			source_ip TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_records(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_records(entity_type, entity_id);
		CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_records(action);
		CREATE INDEX IF NOT EXISTS idx_audit_actor_id ON audit_records(actor_id);
		CREATE INDEX IF NOT EXISTS idx_audit_source_ip ON audit_records(source_ip);
	`

	for _, stmt := range strings.Split(query, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	logging.Info().Msg("Audit records table created/verified")
	return nil
}

func (s *DuckDBStore) seedSeq(ctx context.Context) error {
	var maxSeq sql.NullInt64
	row := s.db.QueryRowContext(ctx, "SELECT MAX(seq) FROM audit_records")
	if err := row.Scan(&maxSeq); err != nil {
		return fmt.Errorf("failed to seed audit sequence: %w", err)
	}
	if maxSeq.Valid {
		s.seq.Store(maxSeq.Int64)
	}
	return nil
}

// Append persists an audit record.
func (s *DuckDBStore) Append(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Seq = s.seq.Add(1)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	changes, err := json.Marshal(rec.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal change set: %w", err)
	}

	var actorID, accessID *int64
	var actorUsername, accessCode *string
	if rec.Actor != nil {
		actorID = &rec.Actor.ID
		actorUsername = &rec.Actor.Username
	}
	if rec.AccessContext != nil {
		accessID = &rec.AccessContext.ID
		accessCode = &rec.AccessContext.Code
	}

	var sourceIP *string
	if rec.SourceIP != "" {
		sourceIP = &rec.SourceIP
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_records (
			id, created_at, seq,
			actor_id, actor_username,
			action, entity_type, entity_id, changes,
			access_id, access_code, source_ip
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.CreatedAt, rec.Seq,
		actorID, actorUsername,
		string(rec.Action), rec.EntityType, rec.EntityID, string(changes),
		accessID, accessCode, sourceIP,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// buildWhere assembles the WHERE clause and args for a filter.
func buildWhere(filter QueryFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if filter.EntityType != "" {
		conds = append(conds, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != 0 {
		conds = append(conds, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.ActorID != 0 {
		conds = append(conds, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.SourceIP != "" {
		conds = append(conds, "source_ip = ?")
		args = append(args, filter.SourceIP)
	}
	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			placeholders[i] = "?"
			args = append(args, string(a))
		}
		conds = append(conds, fmt.Sprintf("action IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.StartTime != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *filter.EndTime)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Query retrieves records matching the filter, ordered by CreatedAt then Seq.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := buildWhere(filter)

	order := "ASC"
	if filter.OrderDesc {
		order = "DESC"
	}
	query := fmt.Sprintf(`
		SELECT
			id, created_at, seq,
			actor_id, actor_username,
			action, entity_type, entity_id,
			CAST(changes AS VARCHAR) as changes,
			access_id, access_code, source_ip
		FROM audit_records%s
		ORDER BY created_at %s, seq %s
	`, where, order, order)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to scan audit record row")
			continue
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var rec Record
	var actorID, accessID sql.NullInt64
	var actorUsername, accessCode, sourceIP sql.NullString
	var changes string

	err := rows.Scan(
		&rec.ID, &rec.CreatedAt, &rec.Seq,
		&actorID, &actorUsername,
		&rec.Action, &rec.EntityType, &rec.EntityID,
		&changes,
		&accessID, &accessCode, &sourceIP,
	)
	if err != nil {
		return nil, err
	}

	if actorID.Valid {
		rec.Actor = &ActorRef{ID: actorID.Int64, Username: actorUsername.String}
	}
	if accessID.Valid {
		rec.AccessContext = &AccessRef{ID: accessID.Int64, Code: accessCode.String}
	}
	rec.SourceIP = sourceIP.String

	if err := json.Unmarshal([]byte(changes), &rec.Changes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal change set: %w", err)
	}
	return &rec, nil
}

// Count returns the number of records matching the filter.
func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := buildWhere(filter)

	var count int64
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_records"+where, args...)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit records: %w", err)
	}
	return count, nil
}

// Prune removes records created before the cutoff.
func (s *DuckDBStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_records WHERE created_at < ?", olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit records: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read pruned row count: %w", err)
	}
	return removed, nil
}

// Stats returns aggregate counts for operator tooling.
func (s *DuckDBStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{
		ByAction:     make(map[string]int64),
		ByEntityType: make(map[string]int64),
	}

	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*), MIN(created_at), MAX(created_at) FROM audit_records")
	var oldest, newest sql.NullTime
	if err := row.Scan(&stats.TotalRecords, &oldest, &newest); err != nil {
		return nil, fmt.Errorf("failed to get audit stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestRecord = &oldest.Time
	}
	if newest.Valid {
		stats.NewestRecord = &newest.Time
	}

	var err error
	if stats.ByAction, err = s.countByColumn(ctx, "action"); err != nil {
		return nil, err
	}
	if stats.ByEntityType, err = s.countByColumn(ctx, "entity_type"); err != nil {
		return nil, err
	}
	return stats, nil
}

// countByColumn executes a GROUP BY query and returns counts per value.
func (s *DuckDBStore) countByColumn(ctx context.Context, column string) (map[string]int64, error) {
	result := make(map[string]int64)
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_records GROUP BY %s", column, column)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s counts: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err == nil {
			result[key] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return result, nil
}
