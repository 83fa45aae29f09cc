// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrInvalidInput is returned for records that cannot be stored.
var ErrInvalidInput = errors.New("invalid input")

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceRules replaces the stored catalog in one transaction.
func (r *SQLRepository) ReplaceRules(ctx context.Context, rules []domain.RuleDefinition) error {
	for i, rule := range rules {
		if rule.RuleID == "" {
			return fmt.Errorf("%w: rule at position %d has no rule_id", ErrInvalidInput, i)
		}
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM rule_definitions`); err != nil {
			return fmt.Errorf("failed to clear rules: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, r.rebind(`
			INSERT INTO rule_definitions (
				rule_id, position, name, description, action, severity, imported_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`))
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for i, rule := range rules {
			_, err := stmt.ExecContext(ctx,
				rule.RuleID, i, rule.Name, rule.Description, rule.Action,
				string(rule.Severity.Normalize()), now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert rule %s: %w", rule.RuleID, err)
			}
		}
		return nil
	})
}

// ListRules returns the stored catalog in import order.
func (r *SQLRepository) ListRules(ctx context.Context) ([]domain.RuleDefinition, error) {
	query := `
		SELECT rule_id, name, description, action, severity
		FROM rule_definitions
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.RuleDefinition
	for rows.Next() {
		var rule domain.RuleDefinition
		var description, action sql.NullString
		var severity string

		if err := rows.Scan(&rule.RuleID, &rule.Name, &description, &action, &severity); err != nil {
			return nil, err
		}
		rule.Description = description.String
		rule.Action = action.String
		rule.Severity = domain.Severity(severity)
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// ReplaceTransactions replaces the stored feed in one transaction.
// Each record must be a JSON object.
func (r *SQLRepository) ReplaceTransactions(ctx context.Context, records [][]byte) error {
	for i, rec := range records {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(rec, &obj); err != nil {
			return fmt.Errorf("%w: record %d is not a JSON object", ErrInvalidInput, i)
		}
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM raw_transactions`); err != nil {
			return fmt.Errorf("failed to clear transactions: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, r.rebind(`
			INSERT INTO raw_transactions (position, record, imported_at) VALUES (?, ?, ?)
		`))
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for i, rec := range records {
			if _, err := stmt.ExecContext(ctx, i, string(rec), now); err != nil {
				return fmt.Errorf("failed to insert record %d: %w", i, err)
			}
		}
		return nil
	})
}

// ListRawTransactions returns the stored records in feed order.
func (r *SQLRepository) ListRawTransactions(ctx context.Context) ([][]byte, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT record FROM raw_transactions ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records [][]byte
	for rows.Next() {
		var rec string
		if err := rows.Scan(&rec); err != nil {
			return nil, err
		}
		records = append(records, []byte(rec))
	}

	return records, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
