// Package sqlite provides SQLite-backed persistence for the inventory core.
package sqlite

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/itemwise/itemwise/internal/platform/storage/sqlitemigrate"
	"github.com/itemwise/itemwise/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func toNullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

// encodeVector serializes a float32 vector as a little-endian blob with a
// leading element count. A nil vector maps to a NULL column.
func encodeVector(vector []float32) []byte {
	if vector == nil {
		return nil
	}
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, int32(len(vector)))
	for _, value := range vector {
		_ = binary.Write(buf, binary.LittleEndian, math.Float32bits(value))
	}
	return buf.Bytes()
}

func decodeVector(data []byte) ([]float32, error) {
	if data == nil {
		return nil, nil
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("vector blob too short: %d bytes", len(data))
	}
	length := int32(binary.LittleEndian.Uint32(data[:4]))
	if length < 0 {
		return nil, fmt.Errorf("vector blob has negative length %d", length)
	}
	if len(data) < 4+int(length)*4 {
		return nil, fmt.Errorf("vector blob truncated: want %d elements", length)
	}
	vector := make([]float32, length)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(data[4+i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector, nil
}

// Store provides SQLite-backed persistence for inventory records.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a SQLite store at the provided path and applies embedded
// migrations before handing the store to higher layers.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, now: time.Now}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// DB returns the underlying sql.DB instance.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Close closes the underlying SQLite database.
//
// Close is intentionally nil-safe so callers can defer it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, "")
}
