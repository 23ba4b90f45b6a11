package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"spndr/internal/core"
	"spndr/internal/log"
)

// Dialect selects the SQL database behind the repository.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Dialect) placeholders() sq.PlaceholderFormat {
	if d == DialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}

const transactionsTable = "transactions"

var transactionColumns = []string{
	"id", "user_id", "title", "amount", "category", "type", "date", "description", "created_at", "updated_at",
}

// ErrInvalidID is returned for ids that cannot name a stored row.
var ErrInvalidID = errors.New("invalid transaction id")

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	UserID string
	Type   core.TransactionType
	Limit  uint64
}

// Repository stores transactions in SQLite or PostgreSQL.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
	now     func() time.Time
	logger  *log.Logger
}

// NewSQLiteRepository opens (and migrates) a SQLite database file.
func NewSQLiteRepository(dbPath string, logger *log.Logger) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(DialectSQLite, dbPath, logger)
}

// NewPostgresRepository opens (and migrates) a PostgreSQL database through
// the pgx driver.
func NewPostgresRepository(databaseURL string, logger *log.Logger) (*Repository, error) {
	return open(DialectPostgres, databaseURL, logger)
}

func open(dialect Dialect, dsn string, logger *log.Logger) (*Repository, error) {
	if logger == nil {
		logger = log.Discard()
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(dialect.placeholders()),
		now:     time.Now,
		logger:  logger.WithComponent(log.ComponentStorage),
	}, nil
}

func (r *Repository) Dialect() Dialect { return r.dialect }

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// List returns transactions newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]core.Transaction, error) {
	query := r.sb.Select(transactionColumns...).
		From(transactionsTable).
		OrderBy("date DESC", "created_at DESC", "id DESC")
	if filter.UserID != "" {
		query = query.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.Type != "" {
		query = query.Where(sq.Eq{"type": string(filter.Type)})
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

// Get returns one transaction or core.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (core.Transaction, error) {
	return r.get(ctx, r.db, id)
}

// Create inserts tx and returns the stored row with its assigned id.
func (r *Repository) Create(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	now := r.now().UTC()
	var id int64
	err := r.sb.Insert(transactionsTable).
		Columns("user_id", "title", "amount", "category", "type", "date", "description", "created_at", "updated_at").
		Values(tx.UserID, tx.Title, tx.Amount.StringFixed(2), tx.Category, string(tx.Type), tx.Date.String(), nullable(tx.Description), now, now).
		Suffix("RETURNING id").
		RunWith(r.db).
		QueryRowContext(ctx).
		Scan(&id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	created, err := r.Get(ctx, strconv.FormatInt(id, 10))
	if err != nil {
		return core.Transaction{}, err
	}

	r.logger.InfoContext(ctx, "Transaction saved",
		log.NewFields().WithTransaction(created.ID, created.Title, created.Amount.String(), created.Category, string(created.Type)).ToSlice()...)
	return created, nil
}

// Update merges patch into the stored row. The read and the write share a
// database transaction.
func (r *Repository) Update(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	if err := patch.Validate(); err != nil {
		return core.Transaction{}, err
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin update: %w", err)
	}
	defer dbTx.Rollback()

	key, err := parseID(id)
	if err != nil {
		return core.Transaction{}, err
	}
	current, err := r.get(ctx, dbTx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	next := patch.Apply(current)
	next.UpdatedAt = r.now().UTC()

	_, err = r.sb.Update(transactionsTable).
		Set("title", next.Title).
		Set("amount", next.Amount.StringFixed(2)).
		Set("category", next.Category).
		Set("type", string(next.Type)).
		Set("date", next.Date.String()).
		Set("description", nullable(next.Description)).
		Set("updated_at", next.UpdatedAt).
		Where(sq.Eq{"id": key}).
		RunWith(dbTx).
		ExecContext(ctx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", id, err)
	}

	updated, err := r.get(ctx, dbTx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := dbTx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit update: %w", err)
	}

	r.logger.InfoContext(ctx, "Transaction updated", log.FieldTransactionID, updated.ID)
	return updated, nil
}

// Delete removes one row, core.ErrNotFound when there is none.
func (r *Repository) Delete(ctx context.Context, id string) error {
	key, err := parseID(id)
	if err != nil {
		return err
	}

	res, err := r.sb.Delete(transactionsTable).
		Where(sq.Eq{"id": key}).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}

	r.logger.InfoContext(ctx, "Transaction deleted", log.FieldTransactionID, id)
	return nil
}

// Clear removes every row and reports how many went.
func (r *Repository) Clear(ctx context.Context) (int64, error) {
	res, err := r.sb.Delete(transactionsTable).RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear transactions: %w", err)
	}
	n, _ := res.RowsAffected()

	r.logger.InfoContext(ctx, "Transactions cleared", log.FieldCount, n)
	return n, nil
}

func (r *Repository) get(ctx context.Context, runner sq.BaseRunner, id string) (core.Transaction, error) {
	key, err := parseID(id)
	if err != nil {
		return core.Transaction{}, err
	}

	row := r.sb.Select(transactionColumns...).
		From(transactionsTable).
		Where(sq.Eq{"id": key}).
		RunWith(runner).
		QueryRowContext(ctx)

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		tx          core.Transaction
		id          int64
		typ         string
		date        dateColumn
		description sql.NullString
		createdAt   timeColumn
		updatedAt   timeColumn
	)
	if err := row.Scan(&id, &tx.UserID, &tx.Title, &tx.Amount, &tx.Category, &typ, &date, &description, &createdAt, &updatedAt); err != nil {
		return core.Transaction{}, err
	}
	tx.ID = strconv.FormatInt(id, 10)
	tx.Type = core.TransactionType(typ)
	tx.Date = date.Date
	tx.Description = description.String
	tx.CreatedAt = createdAt.Time
	tx.UpdatedAt = updatedAt.Time
	return tx, nil
}

func parseID(id string) (int64, error) {
	key, err := strconv.ParseInt(id, 10, 64)
	if err != nil || key <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return key, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
