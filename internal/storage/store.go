package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raine/video-lister/internal/listing"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a listing does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations used by the pipeline, the bot
// and the CLI.
type Store interface {
	InsertListing(ctx context.Context, l *listing.Listing) (*listing.Listing, error)
	GetListing(ctx context.Context, id string) (*listing.Listing, error)
	ListListingsByOwner(ctx context.Context, ownerID string, limit int) ([]listing.Listing, error)

	// Owner settings
	GetOwnerPlatforms(ownerID string) ([]string, error)
	SetOwnerPlatforms(ownerID string, platforms []string) error

	// Vision cache methods
	GetVisionCache(hash string) (string, bool, error)
	SetVisionCache(hash, model, text string) error

	Close() error
}

// SQLiteStore implements Store using SQLite, with listing metadata
// optionally encrypted.
type SQLiteStore struct {
	db     *sql.DB
	sealer *sealer
	mu     sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based store.
// The dbPath is the path to the SQLite database file.
// A nil encryptionKey stores metadata as plain JSON.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	// Configure SQLite with WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	sl, err := newSealer(encryptionKey)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		sealer: sl,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions once the file exists
	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", dbPath).Msg("failed to restrict database permissions")
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	listingsQuery := `
	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		price REAL NOT NULL,
		category TEXT NOT NULL,
		condition TEXT NOT NULL,
		brand TEXT,
		size TEXT,
		suggested_price REAL,
		confidence REAL NOT NULL,
		status TEXT NOT NULL,
		metadata TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_listings_owner ON listings(owner_id, created_at);
	`
	if _, err := s.db.Exec(listingsQuery); err != nil {
		return fmt.Errorf("failed to create listings table: %w", err)
	}

	visionCacheQuery := `
	CREATE TABLE IF NOT EXISTS vision_cache (
		hash TEXT PRIMARY KEY,
		model TEXT,
		text TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(visionCacheQuery); err != nil {
		return fmt.Errorf("failed to create vision_cache table: %w", err)
	}

	ownerSettingsQuery := `
	CREATE TABLE IF NOT EXISTS owner_settings (
		owner_id TEXT PRIMARY KEY,
		platforms TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := s.db.Exec(ownerSettingsQuery); err != nil {
		return fmt.Errorf("failed to create owner_settings table: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertListing stores a new listing and returns it with a generated id.
func (s *SQLiteStore) InsertListing(ctx context.Context, l *listing.Listing) (*listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *l
	stored.ID = uuid.New().String()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.Status == "" {
		stored.Status = listing.StatusPending
	}

	metadata, err := encodeMetadata(stored.Metadata, stored.ID, s.sealer)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO listings (id, owner_id, title, description, price, category, condition, brand, size, suggested_price, confidence, status, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, stored.ID, stored.OwnerID, stored.Title, stored.Description, stored.Price, stored.Category,
		stored.Condition, stored.Brand, stored.Size, stored.SuggestedPrice, stored.Confidence,
		string(stored.Status), string(metadata), stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert listing: %w", err)
	}

	return &stored, nil
}

const listingColumns = `id, owner_id, title, description, price, category, condition, brand, size, suggested_price, confidence, status, metadata, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanListing(row rowScanner) (*listing.Listing, error) {
	var l listing.Listing
	var brand, size sql.NullString
	var suggested sql.NullFloat64
	var status, metadata string

	err := row.Scan(&l.ID, &l.OwnerID, &l.Title, &l.Description, &l.Price, &l.Category,
		&l.Condition, &brand, &size, &suggested, &l.Confidence, &status, &metadata, &l.CreatedAt)
	if err != nil {
		return nil, err
	}

	l.Brand = brand.String
	l.Size = size.String
	if suggested.Valid {
		v := suggested.Float64
		l.SuggestedPrice = &v
	}
	l.Status = listing.Status(status)
	l.Metadata, err = decodeMetadata([]byte(metadata), l.ID, s.sealer)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetListing retrieves a listing by id.
// Returns ErrNotFound if no listing exists.
func (s *SQLiteStore) GetListing(ctx context.Context, id string) (*listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+listingColumns+" FROM listings WHERE id = ?", id)
	l, err := s.scanListing(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return l, nil
}

// ListListingsByOwner returns an owner's most recent listings, newest first.
func (s *SQLiteStore) ListListingsByOwner(ctx context.Context, ownerID string, limit int) ([]listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+listingColumns+" FROM listings WHERE owner_id = ? ORDER BY created_at DESC LIMIT ?",
		ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var listings []listing.Listing
	for rows.Next() {
		l, err := s.scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

// GetOwnerPlatforms returns the owner's default platforms, or nil if none
// are set.
func (s *SQLiteStore) GetOwnerPlatforms(ownerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var platforms string
	err := s.db.QueryRow("SELECT platforms FROM owner_settings WHERE owner_id = ?", ownerID).Scan(&platforms)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get owner platforms: %w", err)
	}
	return splitPlatforms(platforms), nil
}

// SetOwnerPlatforms sets the owner's default platforms. An empty list
// resets to the global default.
func (s *SQLiteStore) SetOwnerPlatforms(ownerID string, platforms []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	INSERT INTO owner_settings (owner_id, platforms)
	VALUES (?, ?)
	ON CONFLICT(owner_id) DO UPDATE SET
		platforms = excluded.platforms;
	`
	_, err := s.db.Exec(query, ownerID, strings.Join(platforms, ","))
	if err != nil {
		return fmt.Errorf("failed to set owner platforms: %w", err)
	}
	return nil
}

func splitPlatforms(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// GetVisionCache retrieves a cached vision model answer by input hash.
func (s *SQLiteStore) GetVisionCache(hash string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var text string
	err := s.db.QueryRow("SELECT text FROM vision_cache WHERE hash = ?", hash).Scan(&text)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query vision cache: %w", err)
	}
	return text, true, nil
}

// SetVisionCache stores a vision model answer in the cache.
func (s *SQLiteStore) SetVisionCache(hash, model, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO vision_cache (hash, model, text)
		VALUES (?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			model = excluded.model,
			text = excluded.text,
			created_at = CURRENT_TIMESTAMP
	`, hash, model, text)
	if err != nil {
		return fmt.Errorf("failed to cache vision result: %w", err)
	}
	return nil
}
