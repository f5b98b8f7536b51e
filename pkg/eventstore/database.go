package eventstore

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const defaultStoreId = "default"

// Snapshots persists collection documents into the sqlite stores table.
type Snapshots struct {
	database *sql.DB
}

func OpenSnapshots(path string) (*Snapshots, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	s := &Snapshots{database: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Snapshots) Close() error {
	return s.database.Close()
}

func (s *Snapshots) init() error {
	if _, err := s.database.Exec(
		`CREATE TABLE IF NOT EXISTS stores (
    	id text not null primary key,
        content text
		)`,
	); err != nil {
		return fmt.Errorf("failed to create stores table: %w", err)
	}
	slog.Info("Ensured initial tables exist")
	return nil
}

// LoadOrCreate returns the stored collection. On first start the collection comes from create, or is a new empty one
// when create is nil, and is persisted straight away.
func (s *Snapshots) LoadOrCreate(ctx context.Context, create func(context.Context) (*Collection, error)) (*Collection, error) {
	if create == nil {
		create = func(context.Context) (*Collection, error) {
			return NewCollection()
		}
	}
	var rawContent string
	err := s.database.QueryRowContext(ctx, `SELECT content FROM stores WHERE id = ?`, defaultStoreId).Scan(&rawContent)
	if errors.Is(err, sql.ErrNoRows) {
		c, err := create(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := s.database.ExecContext(
			ctx, `INSERT OR IGNORE INTO stores (id, content) VALUES (?, ?)`,
			defaultStoreId, base64.StdEncoding.EncodeToString(c.Save()),
		); err != nil {
			return nil, fmt.Errorf("failed to insert initial store: %w", err)
		}
		slog.Info("created new store", "store", defaultStoreId)
		return c, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(rawContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode: %w", err)
	}
	c, err := LoadCollection(raw)
	if err != nil {
		return nil, err
	}
	slog.Info("loaded store", "store", defaultStoreId, "heads", c.Heads())
	return c, nil
}

// Backup writes the collection when its content differs from the stored snapshot. It reports whether a row changed.
func (s *Snapshots) Backup(ctx context.Context, c *Collection) (bool, error) {
	newContent := base64.StdEncoding.EncodeToString(c.Save())
	res, err := s.database.ExecContext(
		ctx, `UPDATE stores SET content = ? WHERE id = ? AND content != ?`,
		newContent,
		defaultStoreId,
		newContent,
	)
	if err != nil {
		return false, fmt.Errorf("failed to backup doc in database: %w", err)
	}
	r, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count rows affected by backup: %w", err)
	}
	return r > 0, nil
}

// BackupContinuously backs the collection up every interval until ctx is done.
func (s *Snapshots) BackupContinuously(ctx context.Context, c *Collection, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if changed, err := s.Backup(ctx, c); err != nil {
				slog.Error("failed to backup store", "err", err)
			} else if changed {
				slog.Info("backed up", "store", defaultStoreId, "heads", c.Heads())
			}
		case <-ctx.Done():
			slog.Info("stopping scheduled backup")
			return
		}
	}
}
