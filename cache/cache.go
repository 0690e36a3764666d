// Package cache stores compiled program images in SQLite keyed by source
// hash, so unchanged sources skip compilation.
package cache

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/dacite-lang/dacite/pkg/bytecode"
)

var log = commonlog.GetLogger("dacite.cache")

// ErrMiss indicates the requested source hash is not cached.
var ErrMiss = errors.New("program not cached")

// Cache is a SQLite-backed image store.
type Cache struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens or creates a cache database at the given path.
func Open(dbPath string) (*Cache, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		hash TEXT PRIMARY KEY,
		image BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		last_used INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Cache{db: db, dbPath: dbPath}, nil
}

// OpenDefault opens the cache at $DACITE_CACHE_DB or the per-user default
// location.
func OpenDefault() (*Cache, error) {
	dbPath := os.Getenv("DACITE_CACHE_DB")
	if dbPath == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("getting cache dir: %w", err)
		}
		dbPath = filepath.Join(base, "dacite", "programs.db")
	}
	return Open(dbPath)
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Path returns the database path the cache was opened with.
func (c *Cache) Path() string {
	return c.dbPath
}

// Get looks up the image for a source hash. The hit's last_used column is
// refreshed. Returns ErrMiss when the hash is absent, and treats a corrupt
// stored image as a miss after evicting it.
func (c *Cache) Get(sourceHash [32]byte) (*bytecode.Image, error) {
	key := hex.EncodeToString(sourceHash[:])

	var blob []byte
	err := c.db.QueryRow("SELECT image FROM programs WHERE hash = ?", key).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("querying program: %w", err)
	}

	img, err := bytecode.UnmarshalImage(blob)
	if err != nil || img.SourceHash != sourceHash {
		log.Warningf("evicting corrupt cache entry %s", key)
		c.Delete(sourceHash)
		return nil, ErrMiss
	}

	c.mu.Lock()
	_, err = c.db.Exec("UPDATE programs SET last_used = ? WHERE hash = ?", time.Now().Unix(), key)
	c.mu.Unlock()
	if err != nil {
		log.Warningf("refreshing last_used for %s: %v", key, err)
	}

	return img, nil
}

// Put stores a compiled program under its source hash, replacing any previous
// entry.
func (c *Cache) Put(sourceHash [32]byte, prog *bytecode.Program) error {
	blob, err := bytecode.MarshalImage(prog, sourceHash)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().Unix()
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO programs (hash, image, created_at, last_used) VALUES (?, ?, ?, ?)",
		hex.EncodeToString(sourceHash[:]), blob, now, now,
	)
	if err != nil {
		return fmt.Errorf("saving program: %w", err)
	}
	return nil
}

// Delete removes the entry for a source hash.
func (c *Cache) Delete(sourceHash [32]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec("DELETE FROM programs WHERE hash = ?", hex.EncodeToString(sourceHash[:]))
	if err != nil {
		return fmt.Errorf("deleting program: %w", err)
	}
	return nil
}

// Purge removes entries not used since the cutoff and returns how many were
// dropped.
func (c *Cache) Purge(unusedSince time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec("DELETE FROM programs WHERE last_used < ?", unusedSince.Unix())
	if err != nil {
		return 0, fmt.Errorf("purging programs: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of cached programs.
func (c *Cache) Count() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM programs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting programs: %w", err)
	}
	return n, nil
}
