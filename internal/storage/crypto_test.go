package storage

import (
	"encoding/json"
	"testing"

	"github.com/raine/video-lister/internal/listing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealer(t *testing.T) {
	s, err := newSealer(DeriveKey("secret"))
	require.NoError(t, err)

	enc := s.seal([]byte("hello"), "listing-1")
	assert.NotEqual(t, enc, s.seal([]byte("hello"), "listing-1"), "nonce must differ between calls")

	dec, err := s.open(enc, "listing-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(dec))

	_, err = s.open(enc, "listing-2")
	assert.ErrorContains(t, err, "decrypt", "sealed data is bound to its listing")

	other, err := newSealer(DeriveKey("other"))
	require.NoError(t, err)
	_, err = other.open(enc, "listing-1")
	assert.Error(t, err)

	_, err = s.open("AAAA", "listing-1")
	assert.ErrorIs(t, err, errSealedTooShort)

	_, err = s.open("not base64!", "listing-1")
	assert.ErrorContains(t, err, "decode")
}

func TestNewSealer(t *testing.T) {
	s, err := newSealer(nil)
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = newSealer([]byte("short"))
	assert.ErrorContains(t, err, "invalid metadata key")
}

func TestDeriveKey(t *testing.T) {
	assert.Nil(t, DeriveKey(""))
	assert.Len(t, DeriveKey("a"), 32)
	assert.Equal(t, DeriveKey("a"), DeriveKey("a"))
	assert.NotEqual(t, DeriveKey("a"), DeriveKey("b"))
}

func TestMetadataEncoding(t *testing.T) {
	m := listing.Metadata{Fallbacks: []string{"price"}}

	plain, err := encodeMetadata(m, "id-1", nil)
	require.NoError(t, err)
	assert.Contains(t, string(plain), `"fallbacks":["price"]`)

	got, err := decodeMetadata(plain, "id-1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"price"}, got.Fallbacks)

	s, err := newSealer(DeriveKey("k"))
	require.NoError(t, err)
	sealed, err := encodeMetadata(m, "id-1", s)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "price")
	assert.True(t, json.Valid(sealed))

	got, err = decodeMetadata(sealed, "id-1", s)
	require.NoError(t, err)
	assert.Equal(t, []string{"price"}, got.Fallbacks)

	_, err = decodeMetadata(sealed, "id-1", nil)
	assert.ErrorContains(t, err, "no key")

	// Plain metadata stays readable after a key is configured
	got, err = decodeMetadata(plain, "id-1", s)
	require.NoError(t, err)
	assert.Equal(t, []string{"price"}, got.Fallbacks)

	empty, err := decodeMetadata(nil, "id-1", nil)
	require.NoError(t, err)
	assert.Nil(t, empty.Analysis)
}
