package tracking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/ord-tracker/internal/storage"
)

func TestMintChannels(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	m := NewMintState(backend, nil)

	assert.False(t, m.HasChannels())
	require.NoError(t, m.AddMintChannel(ctx, "g1", "c1"))
	require.NoError(t, m.AddMintChannel(ctx, "g1", "c2"))
	require.NoError(t, m.AddMintChannel(ctx, "g2", "c9"))

	err := m.AddMintChannel(ctx, "g1", "c1")
	assert.True(t, errors.Is(err, storage.ErrAlreadyExists))
	err = m.AddMintChannel(ctx, "", "c1")
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))

	assert.Equal(t, map[string][]string{"g1": {"c1", "c2"}, "g2": {"c9"}}, m.MintChannels())
	assert.Equal(t, []string{"g1", "g2"}, m.Guilds())

	require.NoError(t, m.RemoveMintChannel(ctx, "g1", "c1"))
	err = m.RemoveMintChannel(ctx, "g1", "c1")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	require.NoError(t, m.RemoveMintChannel(ctx, "g2", "c9"))
	require.NoError(t, m.RemoveMintChannel(ctx, "g1", "c2"))
	assert.False(t, m.HasChannels())
	assert.Equal(t, 6, backend.Saves())
}

func TestMarkThresholdSent(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	m := NewMintState(backend, nil)

	assert.False(t, m.ThresholdSent("g1", "ABC", 30))
	assert.True(t, m.MarkThresholdSent("g1", "ABC", 30, 30.4))
	assert.False(t, m.MarkThresholdSent("g1", "ABC", 30, 30.5))
	assert.True(t, m.ThresholdSent("g1", "ABC", 30))
	assert.False(t, m.ThresholdSent("g2", "ABC", 30))
	assert.Equal(t, 30.4, m.LastSentPercentage("g1", "ABC"))

	require.NoError(t, m.Flush(ctx))
	reloaded := NewMintState(backend, nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.True(t, reloaded.ThresholdSent("g1", "ABC", 30))
	assert.False(t, reloaded.ThresholdSent("g1", "ABC", 50))
}
