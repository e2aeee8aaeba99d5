package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Tidy removes cache entries that were last written before the retention window
func Tidy(path string, retention time.Duration) error {
	if err := Migrate(path); err != nil {
		return err
	}
	db, err := connection(path, false)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = tidy(context.Background(), db, time.Now().Add(-retention))
	return err
}

// Tidy removes entries older than the retention window and reports how many went
func (s *Store) Tidy(ctx context.Context, retention time.Duration) (int64, error) {
	return tidy(ctx, s.db, s.now().Add(-retention))
}

func tidy(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	deleteEntries := sb.SQLite.NewDeleteBuilder()
	query, args := deleteEntries.DeleteFrom(table).
		Where(deleteEntries.LessThan("updated_at", cutoff.UnixMilli())).
		Build()

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("tidy cache entries: %w", err)
	}
	removed, _ := res.RowsAffected()

	log.WithFields(log.Fields{
		"cutoff":  cutoff.Format(time.RFC3339),
		"removed": removed,
	}).Info("Tidied cache database")

	return removed, nil
}
