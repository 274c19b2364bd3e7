package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	dbconfig "carebridge/pkg/database"
	"carebridge/pkg/interfaces"
	"carebridge/pkg/types"
)

// Reserved body keys that map onto managed columns instead of the JSON body
const (
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldUserID    = "user_id"
)

var _ interfaces.DocumentStore = (*Manager)(nil)

// Manager is the SQLite implementation of interfaces.DocumentStore
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	logger       zerolog.Logger
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
	retryDelay   time.Duration
	writeTimeout time.Duration
	now          func() time.Time
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pending migrations and starts the
// single writer goroutine.
func NewManager(config *dbconfig.Config, logger zerolog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	source, err := dbconfig.MigrationsFS(config)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to locate migrations: %w", err)
	}
	migrator := dbconfig.NewMigrationManager(db, source)
	if err := migrator.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrator.ValidateSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		logger:       logger.With().Str("component", "database").Logger(),
		writeChannel: make(chan writeOperation, 100), // TECHNICAL: Buffer for write operations prevents blocking
		shutdown:     make(chan struct{}),
		retryDelay:   5 * time.Second,
		writeTimeout: 30 * time.Second,
		now:          time.Now,
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: Retry exactly once, constraint violations are final
			err := op.operation(m.db)
			if err != nil && !isConstraintError(err) {
				m.logger.Warn().Err(err).Dur("retry_in", m.retryDelay).Msg("database write failed, retrying")
				time.Sleep(m.retryDelay)
				err = op.operation(m.db)
				if err != nil {
					m.logger.Error().Err(err).Msg("database write failed after retry")
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Debug().Msg("database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	timer := time.NewTimer(m.writeTimeout)
	defer timer.Stop()

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	}

	select {
	case err := <-result:
		if isConstraintError(err) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrManagerClosed
	}
}

// Insert stores doc in collection and returns the generated id.
// "user_id", "created_at" and "expires_at" are lifted into managed columns;
// the remaining keys become the JSON body.
func (m *Manager) Insert(ctx context.Context, collection string, doc types.Document) (string, error) {
	if !types.IsValidCollection(collection) {
		return "", types.ErrInvalidCollection
	}

	createdAt := m.now().UTC()
	var expiresAt sql.NullInt64
	var userID sql.NullString
	body := make(types.Document, len(doc))
	for k, v := range doc {
		switch k {
		case fieldCreatedAt:
			if t, ok := v.(time.Time); ok {
				createdAt = t.UTC()
				continue
			}
		case fieldExpiresAt:
			if t, ok := v.(time.Time); ok {
				expiresAt = sql.NullInt64{Int64: t.UnixNano(), Valid: true}
				continue
			}
		case fieldUserID:
			if s, ok := v.(string); ok && s != "" {
				userID = sql.NullString{String: s, Valid: true}
			}
		}
		body[k] = v
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}

	id := uuid.NewString()
	err = m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO documents (id, collection, user_id, data, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, collection, userID, string(data), createdAt.UnixNano(), expiresAt,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return id, nil
}

// Find returns records matching filter, newest first unless opts.OldestFirst
func (m *Manager) Find(ctx context.Context, collection string, filter types.Filter, opts types.FindOptions) ([]*types.Record, error) {
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return nil, err
	}

	order := "DESC"
	if opts.OldestFirst {
		order = "ASC"
	}
	query := `SELECT id, collection, user_id, data, created_at, expires_at FROM documents WHERE ` +
		where + ` ORDER BY created_at ` + order + `, rowid ` + order
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()

	var records []*types.Record
	for rows.Next() {
		var (
			rec       types.Record
			userID    sql.NullString
			data      string
			createdAt int64
			expiresAt sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.Collection, &userID, &data, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", collection, err)
		}
		if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s document %s: %w", collection, rec.ID, err)
		}
		rec.UserID = userID.String
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		if expiresAt.Valid {
			t := time.Unix(0, expiresAt.Int64).UTC()
			rec.ExpiresAt = &t
		}
		records = append(records, &rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", collection, err)
	}
	return records, nil
}

// Update merges patch into every matching body (RFC 7396 semantics: a nil
// value removes the key) and returns the number of updated records.
func (m *Manager) Update(ctx context.Context, collection string, filter types.Filter, patch types.Document) (int64, error) {
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return 0, err
	}
	data, err := json.Marshal(patch)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal patch: %w", err)
	}

	var affected int64
	err = m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`UPDATE documents SET data = json_patch(data, ?) WHERE `+where,
			append([]interface{}{string(data)}, args...)...,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", collection, err)
	}
	return affected, nil
}

// Delete removes matching records and returns the deleted count
func (m *Manager) Delete(ctx context.Context, collection string, filter types.Filter) (int64, error) {
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return 0, err
	}

	var affected int64
	err = m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `DELETE FROM documents WHERE `+where, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	return affected, nil
}

// Count returns the number of matching records
func (m *Manager) Count(ctx context.Context, collection string, filter types.Filter) (int64, error) {
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return n, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents LIMIT 1").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil // Already closed
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// buildWhere translates a Filter into a WHERE clause scoped to collection
func buildWhere(collection string, f types.Filter) (string, []interface{}, error) {
	if !types.IsValidCollection(collection) {
		return "", nil, types.ErrInvalidCollection
	}
	if err := f.Validate(); err != nil {
		return "", nil, err
	}

	clauses := []string{"collection = ?"}
	args := []interface{}{collection}

	if f.ID != "" {
		clauses = append(clauses, "id = ?")
		args = append(args, f.ID)
	}
	if f.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, f.UserID)
	}

	// TECHNICAL DISCOVERY: Sorted keys keep generated SQL stable for the statement cache
	keys := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := "json_extract(data, '$." + k + "')"
		switch v := f.Fields[k].(type) {
		case nil:
			clauses = append(clauses, path+" IS NULL")
		case bool:
			// json_extract yields 1/0 for JSON booleans
			clauses = append(clauses, path+" = ?")
			if v {
				args = append(args, 1)
			} else {
				args = append(args, 0)
			}
		case time.Time:
			clauses = append(clauses, path+" = ?")
			args = append(args, v.Format(time.RFC3339Nano))
		default:
			clauses = append(clauses, path+" = ?")
			args = append(args, v)
		}
	}

	if !f.CreatedBefore.IsZero() {
		clauses = append(clauses, "created_at < ?")
		args = append(args, f.CreatedBefore.UnixNano())
	}
	if !f.ExpiresBefore.IsZero() {
		clauses = append(clauses, "expires_at IS NOT NULL AND expires_at < ?")
		args = append(args, f.ExpiresBefore.UnixNano())
	}

	return strings.Join(clauses, " AND "), args, nil
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
