package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raine/video-lister/internal/listing"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type listingRecord struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	OwnerID        string  `gorm:"not null;index:idx_listings_owner,priority:1"`
	Title          string  `gorm:"not null"`
	Description    string  `gorm:"not null"`
	Price          float64 `gorm:"not null"`
	Category       string  `gorm:"not null"`
	Condition      string  `gorm:"not null"`
	Brand          string
	Size           string
	SuggestedPrice *float64
	Confidence     float64        `gorm:"not null"`
	Status         string         `gorm:"not null"`
	Metadata       datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_listings_owner,priority:2"`
}

func (listingRecord) TableName() string { return "listings" }

type visionCacheRecord struct {
	Hash      string `gorm:"primaryKey"`
	Model     string
	Text      string `gorm:"not null"`
	CreatedAt time.Time
}

func (visionCacheRecord) TableName() string { return "vision_cache" }

type ownerSettingsRecord struct {
	OwnerID   string `gorm:"primaryKey"`
	Platforms string `gorm:"not null;default:''"`
}

func (ownerSettingsRecord) TableName() string { return "owner_settings" }

// PostgresStore implements Store on PostgreSQL through GORM.
type PostgresStore struct {
	db     *gorm.DB
	sealer *sealer
}

// NewPostgresStore connects to dsn and migrates the schema.
func NewPostgresStore(dsn string, encryptionKey []byte, debug bool) (*PostgresStore, error) {
	sl, err := newSealer(encryptionKey)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.AutoMigrate(&listingRecord{}, &visionCacheRecord{}, &ownerSettingsRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Info().Msg("connected to postgres")
	return &PostgresStore{db: db, sealer: sl}, nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertListing stores a new listing and returns it with a generated id.
func (s *PostgresStore) InsertListing(ctx context.Context, l *listing.Listing) (*listing.Listing, error) {
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

	rec := listingRecord{
		ID:             stored.ID,
		OwnerID:        stored.OwnerID,
		Title:          stored.Title,
		Description:    stored.Description,
		Price:          stored.Price,
		Category:       stored.Category,
		Condition:      stored.Condition,
		Brand:          stored.Brand,
		Size:           stored.Size,
		SuggestedPrice: stored.SuggestedPrice,
		Confidence:     stored.Confidence,
		Status:         string(stored.Status),
		Metadata:       datatypes.JSON(metadata),
		CreatedAt:      stored.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to insert listing: %w", err)
	}
	return &stored, nil
}

func (s *PostgresStore) toListing(rec *listingRecord) (*listing.Listing, error) {
	metadata, err := decodeMetadata(rec.Metadata, rec.ID, s.sealer)
	if err != nil {
		return nil, err
	}
	return &listing.Listing{
		ID:             rec.ID,
		OwnerID:        rec.OwnerID,
		Title:          rec.Title,
		Description:    rec.Description,
		Price:          rec.Price,
		Category:       rec.Category,
		Condition:      rec.Condition,
		Brand:          rec.Brand,
		Size:           rec.Size,
		SuggestedPrice: rec.SuggestedPrice,
		Confidence:     rec.Confidence,
		Status:         listing.Status(rec.Status),
		Metadata:       metadata,
		CreatedAt:      rec.CreatedAt,
	}, nil
}

// GetListing retrieves a listing by id.
// Returns ErrNotFound if no listing exists.
func (s *PostgresStore) GetListing(ctx context.Context, id string) (*listing.Listing, error) {
	var rec listingRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return s.toListing(&rec)
}

// ListListingsByOwner returns an owner's most recent listings, newest first.
func (s *PostgresStore) ListListingsByOwner(ctx context.Context, ownerID string, limit int) ([]listing.Listing, error) {
	if limit <= 0 {
		limit = 10
	}
	var recs []listingRecord
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}

	listings := make([]listing.Listing, 0, len(recs))
	for i := range recs {
		l, err := s.toListing(&recs[i])
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, nil
}

// GetOwnerPlatforms returns the owner's default platforms, or nil if none
// are set.
func (s *PostgresStore) GetOwnerPlatforms(ownerID string) ([]string, error) {
	var rec ownerSettingsRecord
	err := s.db.Where("owner_id = ?", ownerID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get owner platforms: %w", err)
	}
	return splitPlatforms(rec.Platforms), nil
}

// SetOwnerPlatforms sets the owner's default platforms.
func (s *PostgresStore) SetOwnerPlatforms(ownerID string, platforms []string) error {
	rec := ownerSettingsRecord{OwnerID: ownerID, Platforms: strings.Join(platforms, ",")}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"platforms"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to set owner platforms: %w", err)
	}
	return nil
}

// GetVisionCache retrieves a cached vision model answer by input hash.
func (s *PostgresStore) GetVisionCache(hash string) (string, bool, error) {
	var rec visionCacheRecord
	err := s.db.Where("hash = ?", hash).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query vision cache: %w", err)
	}
	return rec.Text, true, nil
}

// SetVisionCache stores a vision model answer in the cache.
func (s *PostgresStore) SetVisionCache(hash, model, text string) error {
	rec := visionCacheRecord{Hash: hash, Model: model, Text: text}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hash"}},
		DoUpdates: clause.AssignmentColumns([]string{"model", "text", "created_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to cache vision result: %w", err)
	}
	return nil
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
