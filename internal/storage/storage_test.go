package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTracking() *TrackingDocument {
	doc := NewTrackingDocument()
	doc.TrackedWallets["g1-c1"] = map[string]WalletConfig{
		"bc1pxyz": {Name: "whale", TrackMint: Off, TrackBuy: On, TrackSell: Both},
	}
	doc.OutputChannels["g1-c1"] = "c9"
	doc.TransactionHistory["g1-c1"] = map[string]map[string][]string{
		"c9": {"bc1pxyz": {"insc123", "tx456"}},
	}
	return doc
}

func sampleMint() *MintDocument {
	doc := NewMintDocument()
	doc.Channels["g1"] = []string{"c1", "c2"}
	doc.Progress["g1"] = map[string]MintProgress{
		"840000:1": {Sent: map[string]bool{"30": true}, LastSentPercentage: 30.4},
	}
	return doc
}

func TestTriStateJSON(t *testing.T) {
	tests := []struct {
		in   string
		want TriState
	}{
		{`true`, On},
		{`false`, Off},
		{`null`, Off},
		{`"both"`, Both},
		{`"BOTH"`, Both},
		{`"true"`, On},
		{`"false"`, Off},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got TriState
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}

	var bad TriState
	err := json.Unmarshal([]byte(`"sometimes"`), &bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	out, err := json.Marshal(WalletConfig{Name: "a", TrackMint: Both, TrackBuy: On})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a","track_mint":"both","track_buy":true,"track_sell":false}`, string(out))
}

func TestChannelIDAcceptsNumbers(t *testing.T) {
	var doc TrackingDocument
	require.NoError(t, json.Unmarshal([]byte(`{"output_channels":{"g1":123456789012345678,"g2":"42"}}`), &doc))
	assert.Equal(t, ChannelID("123456789012345678"), doc.OutputChannels["g1"])
	assert.Equal(t, ChannelID("42"), doc.OutputChannels["g2"])
}

func TestJSONFilesMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONFiles(filepath.Join(dir, "t.json"), filepath.Join(dir, "m.json"))
	require.NoError(t, err)

	doc, err := store.LoadTracking(context.Background())
	require.NoError(t, err)
	assert.Empty(t, doc.TrackedWallets)
	assert.NotNil(t, doc.TransactionHistory)

	mint, err := store.LoadMint(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mint.Channels)
}

func TestJSONFilesRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	trackingPath := filepath.Join(dir, "state", "t.json")
	store, err := NewJSONFiles(trackingPath, filepath.Join(dir, "state", "m.json"))
	require.NoError(t, err)

	require.NoError(t, store.SaveTracking(ctx, sampleTracking()))
	require.NoError(t, store.SaveMint(ctx, sampleMint()))

	got, err := store.LoadTracking(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleTracking(), got)

	mint, err := store.LoadMint(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleMint(), mint)

	raw, err := os.ReadFile(trackingPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n    \"output_channels\"")

	entries, err := os.ReadDir(filepath.Dir(trackingPath))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestJSONFilesCorruptFileMovedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := NewJSONFiles(path, filepath.Join(dir, "m.json"))
	require.NoError(t, err)

	doc, err := store.LoadTracking(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
	require.NotNil(t, doc)
	assert.Empty(t, doc.TrackedWallets)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestJSONFilesToleratesMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tracked_wallets":{}}`), 0o644))

	store, err := NewJSONFiles(path, filepath.Join(dir, "m.json"))
	require.NoError(t, err)

	doc, err := store.LoadTracking(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc.OutputChannels)
	assert.NotNil(t, doc.TransactionHistory)
}

func TestJSONFilesReadsFlatMintLayout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.json")
	legacy := `{
		"111": {
			"333": true,
			"222": true,
			"840000:3": {"sent": {"30": true, "50": true}, "last_sent_percentage": 50}
		},
		"444": {"555": false}
	}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	store, err := NewJSONFiles(filepath.Join(dir, "t.json"), path)
	require.NoError(t, err)

	doc, err := store.LoadMint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"222", "333"}, doc.Channels["111"])
	assert.Empty(t, doc.Channels["444"])
	progress := doc.Progress["111"]["840000:3"]
	assert.True(t, progress.Sent["30"])
	assert.True(t, progress.Sent["50"])
	assert.Equal(t, 50.0, progress.LastSentPercentage)

	require.NoError(t, store.SaveMint(context.Background(), doc))
	again, err := store.LoadMint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, doc.Channels, again.Channels)
	assert.Equal(t, doc.Progress, again.Progress)
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	defer store.Close()

	empty, err := store.LoadTracking(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.TrackedWallets)

	require.NoError(t, store.SaveTracking(ctx, sampleTracking()))
	require.NoError(t, store.SaveMint(ctx, sampleMint()))

	got, err := store.LoadTracking(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleTracking(), got)

	mint, err := store.LoadMint(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleMint(), mint)
}

func TestSQLiteHistoryIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SaveTracking(ctx, sampleTracking()))

	next := sampleTracking()
	delete(next.TrackedWallets, "g1-c1")
	next.TransactionHistory["g1-c1"]["c9"]["bc1pxyz"] = []string{"insc123", "insc123", "zzz"}
	require.NoError(t, store.SaveTracking(ctx, next))

	got, err := store.LoadTracking(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.TrackedWallets)
	assert.Equal(t, []string{"insc123", "tx456", "zzz"}, got.TransactionHistory["g1-c1"]["c9"]["bc1pxyz"])
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	store, err := NewRedis(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0, "ord-tracker-test:"+t.Name()+":")
	require.NoError(t, err)
	defer store.Close()
	defer store.client.Del(ctx, store.key("tracking"), store.key("mint"))

	require.NoError(t, store.SaveTracking(ctx, sampleTracking()))
	got, err := store.LoadTracking(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleTracking(), got)

	require.NoError(t, store.SaveMint(ctx, sampleMint()))
	mint, err := store.LoadMint(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleMint(), mint)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "etcd"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestMemoryCopiesDocuments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	doc := sampleTracking()
	require.NoError(t, m.SaveTracking(ctx, doc))

	doc.OutputChannels["g1-c1"] = "changed"
	got, err := m.LoadTracking(ctx)
	require.NoError(t, err)
	assert.Equal(t, ChannelID("c9"), got.OutputChannels["g1-c1"])
	assert.Equal(t, 1, m.Saves())
}
