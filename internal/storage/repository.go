package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"expenditures/internal/core"
	"expenditures/internal/livesync"
	"expenditures/internal/log"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db     *sql.DB
	now    func() time.Time
	newID  func() string
	logger *log.Logger
}

// Option configures a SQLiteRepository.
type Option func(*SQLiteRepository)

// WithClock sets the clock used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(r *SQLiteRepository) { r.now = now }
}

// WithIDGenerator sets the record id generator.
func WithIDGenerator(gen func() string) Option {
	return func(r *SQLiteRepository) { r.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *SQLiteRepository) { r.logger = l }
}

func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:    db,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(repo)
	}
	repo.logger = log.OrDiscard(repo.logger).WithComponent(log.ComponentStorage)
	repo.logger.Debug("SQLite repository ready", "db_path", dbPath, "schema_version", version)
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Create inserts a new record. The store assigns id and created_at.
func (r *SQLiteRepository) Create(ctx context.Context, n core.NewRecord) (core.Record, error) {
	n = n.Normalize()
	if err := n.Validate(); err != nil {
		return core.Record{}, err
	}
	now := r.now()
	rec := core.Record{
		ID:        r.newID(),
		Item:      n.Item,
		Amount:    n.Amount,
		Vendor:    n.Vendor,
		Notes:     n.Notes,
		CreatedAt: now,
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenditures (id, item, amount, vendor, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Item, rec.Amount.String(), nullString(rec.Vendor), nullString(rec.Notes),
		now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return core.Record{}, fmt.Errorf("insert expenditure: %w", err)
	}

	r.logger.InfoContext(ctx, "Expenditure saved to SQLite",
		log.NewFields().WithRecord(rec.ID, rec.Item, rec.Amount.String()).WithOperation(log.OpCreate).ToSlice()...)
	return rec, nil
}

// Update applies p to the record with the given id inside a transaction.
func (r *SQLiteRepository) Update(ctx context.Context, id string, p core.Patch) (core.Record, error) {
	if err := p.Validate(); err != nil {
		return core.Record{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Record{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec, err := scanRecord(tx.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("update %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("load expenditure: %w", err)
	}

	rec = p.Apply(rec)
	_, err = tx.ExecContext(ctx,
		`UPDATE expenditures SET item = ?, amount = ?, vendor = ?, notes = ?, updated_at = ? WHERE id = ?`,
		rec.Item, rec.Amount.String(), nullString(rec.Vendor), nullString(rec.Notes), r.now().UnixMilli(), id)
	if err != nil {
		return core.Record{}, fmt.Errorf("update expenditure: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Record{}, fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.InfoContext(ctx, "Expenditure updated",
		log.NewFields().WithRecord(rec.ID, rec.Item, rec.Amount.String()).WithOperation(log.OpUpdate).ToSlice()...)
	return rec, nil
}

// Delete removes the record with the given id.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenditures WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expenditure: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expenditure: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s: %w", id, core.ErrNotFound)
	}
	r.logger.InfoContext(ctx, "Expenditure deleted", log.FieldRecordID, id)
	return nil
}

// Get returns the record with the given id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (core.Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("get %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get expenditure: %w", err)
	}
	return rec, nil
}

// ListOrdered returns every record ordered by createdAt, amount or item.
// Records without created_at come first in descending order and last in
// ascending order.
func (r *SQLiteRepository) ListOrdered(ctx context.Context, orderField string, dir livesync.Direction) ([]core.Record, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY `+orderClause(orderField, dir))
	if err != nil {
		return nil, fmt.Errorf("list expenditures: %w", err)
	}
	defer rows.Close()

	var out []core.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expenditure: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expenditures: %w", err)
	}
	return out, nil
}

// Ping checks that the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const selectColumns = `SELECT id, item, amount, vendor, notes, created_at FROM expenditures`

// orderClause only ever emits fixed column expressions, never caller text.
func orderClause(field string, dir livesync.Direction) string {
	d := "ASC"
	if dir == livesync.Descending {
		d = "DESC"
	}
	switch strings.ToLower(field) {
	case "amount":
		return "CAST(amount AS REAL) " + d + ", rowid ASC"
	case "item":
		return "item COLLATE NOCASE " + d + ", rowid ASC"
	default:
		return "(created_at IS NULL) " + d + ", created_at " + d + ", rowid ASC"
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (core.Record, error) {
	var (
		rec           core.Record
		amount        string
		vendor, notes sql.NullString
		createdAt     sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &rec.Item, &amount, &vendor, &notes, &createdAt); err != nil {
		return core.Record{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Record{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	rec.Amount = d
	rec.Vendor = vendor.String
	rec.Notes = notes.String
	if createdAt.Valid {
		rec.CreatedAt = time.UnixMilli(createdAt.Int64)
	}
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
