package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func (m *memoryCache) GetVisionCache(hash string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.entries[hash]
	return text, ok, nil
}

func (m *memoryCache) SetVisionCache(hash, model, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string]string{}
	}
	m.entries[hash] = text
	return nil
}

type countingVision struct {
	calls int
	err   error
}

func (c *countingVision) DescribeImage(ctx context.Context, image []byte, mimeType, instruction string) (*Generation, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &Generation{Text: "desc of " + string(image), Model: "m", Usage: Usage{TotalTokens: 10}}, nil
}

func TestCachedVision(t *testing.T) {
	inner := &countingVision{}
	cached := NewCachedVision(inner, &memoryCache{})
	ctx := context.Background()

	first, err := cached.DescribeImage(ctx, []byte("img1"), "image/jpeg", "describe")
	require.NoError(t, err)
	assert.Equal(t, "desc of img1", first.Text)

	second, err := cached.DescribeImage(ctx, []byte("img1"), "image/jpeg", "describe")
	require.NoError(t, err)
	assert.Equal(t, "desc of img1", second.Text)
	assert.Equal(t, Usage{}, second.Usage)
	assert.Equal(t, 1, inner.calls)

	// Different instruction is a different key
	_, err = cached.DescribeImage(ctx, []byte("img1"), "image/jpeg", "other")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedVision_ErrorNotCached(t *testing.T) {
	inner := &countingVision{err: errors.New("boom")}
	store := &memoryCache{}
	cached := NewCachedVision(inner, store)

	_, err := cached.DescribeImage(context.Background(), []byte("img"), "image/jpeg", "describe")
	assert.Error(t, err)
	assert.Empty(t, store.entries)
}

func TestHashInputs_BoundaryCollision(t *testing.T) {
	assert.NotEqual(t, hashInputs([]byte("ab"), []byte("c")), hashInputs([]byte("a"), []byte("bc")))
}
