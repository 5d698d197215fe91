package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/getsentry/sentry-go"

	"github.com/suspectuso/ord-tracker/internal/metrics"
	"github.com/suspectuso/ord-tracker/internal/storage"
)

// MintState holds mint-tracking channels and the thresholds already announced
// per (guild, token).
type MintState struct {
	mu      sync.Mutex
	backend storage.Backend
	doc     *storage.MintDocument
	log     *slog.Logger
}

func NewMintState(backend storage.Backend, log *slog.Logger) *MintState {
	if log == nil {
		log = slog.Default()
	}
	return &MintState{
		backend: backend,
		doc:     storage.NewMintDocument(),
		log:     log,
	}
}

// Load replaces the in-memory state with the persisted one. On error the state is
// left empty.
func (m *MintState) Load(ctx context.Context) error {
	doc, err := m.backend.LoadMint(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil || doc == nil {
		m.doc = storage.NewMintDocument()
		if err != nil {
			return fmt.Errorf("load mint state: %w", err)
		}
		return nil
	}
	m.doc = doc
	return nil
}

func (m *MintState) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked(ctx)
}

func (m *MintState) flushLocked(ctx context.Context) error {
	if err := m.backend.SaveMint(ctx, m.doc); err != nil {
		return fmt.Errorf("save mint state: %w", err)
	}
	return nil
}

func (m *MintState) persistLocked(ctx context.Context) {
	if err := m.flushLocked(ctx); err != nil {
		m.log.Error("persist mint state", "error", err)
		metrics.PersistFailures.WithLabelValues("mint").Inc()
		sentry.CaptureException(err)
	}
}

// AddMintChannel configures channel to receive mint updates for guild.
func (m *MintState) AddMintChannel(ctx context.Context, guild, channel string) error {
	guild, channel = strings.TrimSpace(guild), strings.TrimSpace(channel)
	if guild == "" || channel == "" {
		return fmt.Errorf("%w: guild and channel are required", storage.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.doc.Channels[guild] {
		if ch == channel {
			return fmt.Errorf("%w: mint channel %s in guild %s", storage.ErrAlreadyExists, channel, guild)
		}
	}
	m.doc.Channels[guild] = append(m.doc.Channels[guild], channel)
	m.persistLocked(ctx)
	return nil
}

// RemoveMintChannel stops mint updates to channel.
func (m *MintState) RemoveMintChannel(ctx context.Context, guild, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	channels := m.doc.Channels[guild]
	for i, ch := range channels {
		if ch != channel {
			continue
		}
		channels = append(channels[:i:i], channels[i+1:]...)
		if len(channels) == 0 {
			delete(m.doc.Channels, guild)
		} else {
			m.doc.Channels[guild] = channels
		}
		m.persistLocked(ctx)
		return nil
	}
	return fmt.Errorf("%w: mint channel %s in guild %s", storage.ErrNotFound, channel, guild)
}

// MintChannels returns a copy of guild -> channels for guilds with at least one channel.
func (m *MintState) MintChannels() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]string, len(m.doc.Channels))
	for guild, channels := range m.doc.Channels {
		if len(channels) == 0 {
			continue
		}
		out[guild] = append([]string(nil), channels...)
	}
	return out
}

// Guilds returns the guilds with mint channels, sorted.
func (m *MintState) Guilds() []string {
	channels := m.MintChannels()
	guilds := make([]string, 0, len(channels))
	for g := range channels {
		guilds = append(guilds, g)
	}
	sort.Strings(guilds)
	return guilds
}

// HasChannels reports whether any guild has a mint channel.
func (m *MintState) HasChannels() bool {
	return len(m.MintChannels()) > 0
}

// ThresholdSent reports whether threshold was announced for (guild, token).
func (m *MintState) ThresholdSent(guild, token string, threshold float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.Progress[guild][token].Sent[storage.FormatThreshold(threshold)]
}

// MarkThresholdSent records the announcement and reports whether it was new.
func (m *MintState) MarkThresholdSent(guild, token string, threshold, percentage float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := storage.FormatThreshold(threshold)
	tokens := m.doc.Progress[guild]
	if tokens == nil {
		tokens = make(map[string]storage.MintProgress)
		m.doc.Progress[guild] = tokens
	}
	p := tokens[token]
	if p.Sent[key] {
		return false
	}
	if p.Sent == nil {
		p.Sent = make(map[string]bool)
	}
	p.Sent[key] = true
	p.LastSentPercentage = percentage
	tokens[token] = p
	return true
}

// LastSentPercentage returns the percentage at the last announcement for (guild, token).
func (m *MintState) LastSentPercentage(guild, token string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.Progress[guild][token].LastSentPercentage
}
