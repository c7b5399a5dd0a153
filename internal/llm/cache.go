package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/rs/zerolog/log"
)

// VisionCache stores vision model answers keyed by input hash.
type VisionCache interface {
	GetVisionCache(hash string) (text string, found bool, err error)
	SetVisionCache(hash, model, text string) error
}

// CachedVision wraps a VisionModel with a persistent cache.
type CachedVision struct {
	inner VisionModel
	store VisionCache
}

// NewCachedVision creates a cached vision model.
func NewCachedVision(inner VisionModel, store VisionCache) *CachedVision {
	return &CachedVision{inner: inner, store: store}
}

// hashInputs creates a SHA256 hash from the instruction and image data.
// Includes length prefix for each part to prevent boundary collisions.
func hashInputs(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		// Write length to prevent boundary collisions (e.g. [A,B] vs [AB])
		binary.Write(h, binary.LittleEndian, int64(len(p)))
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DescribeImage implements VisionModel with caching.
func (c *CachedVision) DescribeImage(ctx context.Context, image []byte, mimeType, instruction string) (*Generation, error) {
	hash := hashInputs([]byte(instruction), []byte(mimeType), image)

	if c.store != nil {
		text, found, err := c.store.GetVisionCache(hash)
		if err != nil {
			log.Warn().Err(err).Msg("failed to check vision cache")
		} else if found {
			log.Debug().Str("hash", hash[:16]).Msg("vision cache hit")
			// Zero usage for cached result
			return &Generation{Text: text, Model: "cache"}, nil
		}
	}

	result, err := c.inner.DescribeImage(ctx, image, mimeType, instruction)
	if err != nil {
		return nil, err
	}

	if c.store != nil && result.Text != "" {
		if err := c.store.SetVisionCache(hash, result.Model, result.Text); err != nil {
			log.Warn().Err(err).Msg("failed to cache vision result")
		} else {
			log.Debug().Str("hash", hash[:16]).Msg("cached vision result")
		}
	}

	return result, nil
}
