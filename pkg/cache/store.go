// Package cache stores analyzer records in SQLite keyed by content hash and
// journals batch runs as they progress.
package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pierrec/lz4/v4"
	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"

	"github.com/Sumatoshi-tech/scopestat/pkg/adapter"
	"github.com/Sumatoshi-tech/scopestat/pkg/model"
)

//go:embed schema.sql
var schemaSQL string

//go:embed pragmas.sql
var pragmasSQL string

// DefaultPath is the cache database location relative to the working directory.
const DefaultPath = ".scopestat/cache.db"

const dirPerm = 0o750

var (
	// ErrMiss is returned by Get when no record is stored for a key.
	ErrMiss = errors.New("cache miss")
	// ErrCorrupt is returned when a stored payload cannot be decoded.
	ErrCorrupt = errors.New("corrupt cache entry")
)

// Key addresses one cached record.
type Key [32]byte

// String returns the hex form of the key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// NewKey derives the key of a record from the analyzer identity, the file path
// and the file content.
func NewKey(analyzerID, path string, content []byte) Key {
	hasher := blake3.New(len(Key{}), nil)

	hasher.Write([]byte(analyzerID))
	hasher.Write([]byte{0})
	hasher.Write([]byte(path))
	hasher.Write([]byte{0})
	hasher.Write(content)

	var key Key

	copy(key[:], hasher.Sum(nil))

	return key
}

// AnalyzerID identifies an analyzer build by its resolved path, size and
// modification time, so a rebuilt analyzer invalidates earlier records.
func AnalyzerID(binary string) (string, error) {
	resolved := binary

	info, err := os.Stat(resolved)
	if err != nil {
		lookedUp, lookErr := exec.LookPath(binary)
		if lookErr != nil {
			return "", fmt.Errorf("resolve analyzer %s: %w", binary, err)
		}

		resolved = lookedUp

		info, err = os.Stat(resolved)
		if err != nil {
			return "", fmt.Errorf("stat analyzer %s: %w", resolved, err)
		}
	}

	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("resolve analyzer %s: %w", resolved, err)
	}

	fingerprint := strings.Join([]string{
		abs,
		strconv.FormatInt(info.Size(), 10),
		strconv.FormatInt(info.ModTime().UnixNano(), 10),
	}, "\n")

	sum := blake3.Sum256([]byte(fingerprint))

	return hex.EncodeToString(sum[:16]), nil
}

// Options configures a Store.
type Options struct {
	Logger *slog.Logger
	// MemoryBytes is the budget of the in-memory layer. Zero uses DefaultMemoryBytes.
	MemoryBytes int64
}

// Stats counts lookups made through Wrap.
type Stats struct {
	Hits   int64
	Misses int64
}

// Lookups returns the number of cache lookups.
func (s Stats) Lookups() int64 {
	return s.Hits + s.Misses
}

// HitRate returns the hit rate (0.0 to 1.0). Zero lookups yield 0.
func (s Stats) HitRate() float64 {
	if s.Lookups() == 0 {
		return 0
	}

	return float64(s.Hits) / float64(s.Lookups())
}

// Store is the SQLite-backed record cache and run journal.
type Store struct {
	conn   *sql.DB
	memory *LRU
	logger *slog.Logger
	path   string
	hits   atomic.Int64
	misses atomic.Int64
}

// Open opens or creates the database at path, creating parent directories.
func Open(path string, opts Options) (*Store, error) {
	err := os.MkdirAll(filepath.Dir(path), dirPerm)
	if err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	conn.SetMaxOpenConns(1)

	for pragma := range strings.SplitSeq(pragmasSQL, "\n") {
		pragma = strings.TrimSpace(pragma)
		if pragma == "" || strings.HasPrefix(pragma, "--") {
			continue
		}

		_, err = conn.Exec(pragma)
		if err != nil {
			conn.Close()

			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	_, err = conn.Exec(schemaSQL)
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("apply cache schema: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Store{
		conn:   conn,
		memory: NewLRU(opts.MemoryBytes),
		logger: logger,
		path:   path,
	}, nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	mem := s.memory.Stats()
	s.logger.Debug("cache closed",
		"path", s.path,
		"memory_entries", mem.Entries,
		"memory_bytes", mem.CurrentSize,
		"memory_hits", mem.Hits,
		"memory_misses", mem.Misses,
	)

	err := s.conn.Close()
	if err != nil {
		return fmt.Errorf("close cache: %w", err)
	}

	return nil
}

// Stats returns hit and miss counts of wrapped analyzers.
func (s *Store) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load()}
}

// Get returns the record stored under key, or ErrMiss.
func (s *Store) Get(ctx context.Context, key Key) (*model.SourceFileRecord, error) {
	if data, ok := s.memory.Get(key); ok {
		return decodeRecord(data)
	}

	var (
		rawSize int
		payload []byte
	)

	err := s.conn.QueryRowContext(ctx,
		`SELECT raw_size, payload FROM records WHERE key = ?`, key[:],
	).Scan(&rawSize, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}

	if err != nil {
		return nil, fmt.Errorf("query record %s: %w", key, err)
	}

	data, err := decompress(payload, rawSize)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrCorrupt, key, err)
	}

	s.memory.Put(key, data)

	return decodeRecord(data)
}

// Put stores record under key, replacing any earlier entry.
func (s *Store) Put(ctx context.Context, key Key, analyzerID string, record *model.SourceFileRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", record.Path, err)
	}

	payload, err := compress(data)
	if err != nil {
		return fmt.Errorf("compress record %s: %w", record.Path, err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO records (key, analyzer, path, raw_size, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		key[:], analyzerID, record.Path, len(data), payload, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", record.Path, err)
	}

	s.memory.Put(key, data)

	return nil
}

// Prune removes records produced by analyzers other than analyzerID and
// returns how many were deleted.
func (s *Store) Prune(ctx context.Context, analyzerID string) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM records WHERE analyzer <> ?`, analyzerID)
	if err != nil {
		return 0, fmt.Errorf("prune records: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune records: %w", err)
	}

	return n, nil
}

// Wrap decorates next with the cache. Paths are read relative to base. A file
// that cannot be read bypasses the cache; failures of next are never stored.
func (s *Store) Wrap(analyzerID, base string, next adapter.Func) adapter.Func {
	return func(ctx context.Context, path string) (*model.SourceFileRecord, error) {
		content, err := os.ReadFile(filepath.Join(base, filepath.FromSlash(path)))
		if err != nil {
			s.logger.DebugContext(ctx, "cache bypass", "path", path, "error", err)

			return next(ctx, path)
		}

		key := NewKey(analyzerID, path, content)

		record, err := s.Get(ctx, key)
		if err == nil {
			s.hits.Add(1)

			return record, nil
		}

		if !errors.Is(err, ErrMiss) {
			s.logger.WarnContext(ctx, "cache read failed", "path", path, "error", err)
		}

		s.misses.Add(1)

		record, err = next(ctx, path)
		if err != nil {
			return nil, err
		}

		record.Normalize(path)

		putErr := s.Put(ctx, key, analyzerID, record)
		if putErr != nil {
			s.logger.WarnContext(ctx, "cache write failed", "path", path, "error", putErr)
		}

		return record, nil
	}
}

func compress(data []byte) ([]byte, error) {
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// Incompressible input is stored verbatim; decompress tells them apart by length.
	if written == 0 || written >= len(data) {
		return data, nil
	}

	return compressed[:written], nil
}

func decompress(payload []byte, rawSize int) ([]byte, error) {
	if len(payload) == rawSize {
		return payload, nil
	}

	data := make([]byte, rawSize)

	n, err := lz4.UncompressBlock(payload, data)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}

	if n != rawSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, want %d: %w", n, rawSize, fs.ErrInvalid)
	}

	return data, nil
}

func decodeRecord(data []byte) (*model.SourceFileRecord, error) {
	var record model.SourceFileRecord

	err := json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return &record, nil
}
