package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/klauspost/compress/zstd"

	"synthsite/cache"
)

const (
	table = "cache_entries"

	encodingZstd     = "zstd"
	encodingIdentity = "identity"
)

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
)

func codecs() (*zstd.Encoder, *zstd.Decoder) {
	encoderOnce.Do(func() {
		// Neither constructor fails without options
		encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		decoder, _ = zstd.NewReader(nil)
	})
	return encoder, decoder
}

// Store is a cache.KeyValueStore backed by SQLite. Payloads are stored zstd compressed.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open migrates the database at path and returns a store on it
func Open(path string) (*Store, error) {
	if err := Migrate(path); err != nil {
		return nil, err
	}
	db, err := connection(path, false)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	query, args := sb.Select("payload", "encoding").
		From(table).
		Where(sb.Equal("key", key)).
		Build()

	var payload []byte
	var encoding string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&payload, &encoding)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("select cache entry %s: %w", key, err)
	}

	switch encoding {
	case encodingIdentity:
		return payload, nil
	case encodingZstd:
		_, dec := codecs()
		value, err := dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress cache entry %s: %w", key, err)
		}
		return value, nil
	default:
		return nil, fmt.Errorf("cache entry %s has unknown encoding %q", key, encoding)
	}
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	enc, _ := codecs()
	payload := enc.EncodeAll(value, nil)

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	query, args := ib.ReplaceInto(table).
		Cols("key", "payload", "encoding", "updated_at").
		Values(key, payload, encodingZstd, s.now().UnixMilli()).
		Build()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("replace cache entry %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys, newest first
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	query, args := sb.Select("key").From(table).OrderBy("updated_at").Desc().Build()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
