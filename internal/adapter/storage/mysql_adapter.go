package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

var ErrOptimisticLock = errors.New("optimistic lock conflict")

const (
	mysqlDuplicateEntry = 1062
	maxWriteAttempts    = 3
)

const createSlotsTable = `
CREATE TABLE IF NOT EXISTS slots (
	slot_key   VARCHAR(64)  NOT NULL PRIMARY KEY,
	value      LONGTEXT     NOT NULL,
	revision   BIGINT       NOT NULL DEFAULT 0,
	updated_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates the slots table when missing.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, createSlotsTable); err != nil {
		return fmt.Errorf("create slots table: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	value, _, err := m.read(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set overwrites the slot, retrying when a concurrent writer bumped the revision first.
func (m *MySQLAdapter) Set(ctx context.Context, key, value string) error {
	var err error
	for range maxWriteAttempts {
		if err = m.write(ctx, key, value); !errors.Is(err, ErrOptimisticLock) {
			return err
		}
	}
	return err
}

func (m *MySQLAdapter) write(ctx context.Context, key, value string) error {
	_, revision, err := m.read(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = m.db.ExecContext(ctx, `
			INSERT INTO slots (slot_key, value, revision) VALUES (?, ?, 1)`,
			key, value,
		)
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return ErrOptimisticLock
		}
		if err != nil {
			return fmt.Errorf("insert slot: %w", err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE slots
		SET value = ?, revision = revision + 1
		WHERE slot_key = ? AND revision = ?`,
		value, key, revision,
	)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOptimisticLock
	}
	return nil
}

func (m *MySQLAdapter) Delete(ctx context.Context, key string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM slots WHERE slot_key = ?`, key); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	return nil
}

// Revision returns the slot's write count, 0 when absent.
func (m *MySQLAdapter) Revision(ctx context.Context, key string) (int64, error) {
	_, revision, err := m.read(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return revision, err
}

func (m *MySQLAdapter) read(ctx context.Context, key string) (string, int64, error) {
	var (
		value    string
		revision int64
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT value, revision FROM slots WHERE slot_key = ?`, key,
	).Scan(&value, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, err
	}
	if err != nil {
		return "", 0, fmt.Errorf("query slot: %w", err)
	}
	return value, revision, nil
}
