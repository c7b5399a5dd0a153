package storage

import (
	"encoding/json"
	"fmt"

	"github.com/raine/video-lister/internal/listing"
)

// sealedMetadata is the stored form of encrypted listing metadata. It is
// still a JSON object so it fits a jsonb column.
type sealedMetadata struct {
	Encrypted string `json:"encrypted"`
}

// encodeMetadata serializes listing metadata to JSON, sealing it when s is
// not nil.
func encodeMetadata(m listing.Metadata, listingID string, s *sealer) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if s == nil {
		return data, nil
	}
	return json.Marshal(sealedMetadata{Encrypted: s.seal(data, listingID)})
}

// decodeMetadata reverses encodeMetadata. Plain JSON written before a key
// was configured still reads back.
func decodeMetadata(data []byte, listingID string, s *sealer) (listing.Metadata, error) {
	var m listing.Metadata
	if len(data) == 0 {
		return m, nil
	}

	var sealed sealedMetadata
	if err := json.Unmarshal(data, &sealed); err == nil && sealed.Encrypted != "" {
		if s == nil {
			return m, fmt.Errorf("metadata is encrypted but no key is configured")
		}
		if data, err = s.open(sealed.Encrypted, listingID); err != nil {
			return m, fmt.Errorf("failed to decrypt metadata: %w", err)
		}
	}

	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}
