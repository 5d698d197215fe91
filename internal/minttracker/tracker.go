package minttracker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/suspectuso/ord-tracker/internal/metrics"
	"github.com/suspectuso/ord-tracker/internal/notifier"
	"github.com/suspectuso/ord-tracker/internal/satosea"
	"github.com/suspectuso/ord-tracker/internal/storage"
	"github.com/suspectuso/ord-tracker/internal/tracking"
)

// Source reports trending runes and their details.
type Source interface {
	HotRunes(ctx context.Context) ([]satosea.HotRune, error)
	RuneInfo(ctx context.Context, id string) (*satosea.RuneDetails, error)
}

type Options struct {
	Interval   time.Duration
	Thresholds []float64
	// Window is the width of the catch window above each threshold.
	Window float64
}

// Tracker announces when trending runes cross mint-progress thresholds.
type Tracker struct {
	state      *tracking.MintState
	source     Source
	notify     notifier.Notifier
	interval   time.Duration
	thresholds []float64
	window     float64
	log        *slog.Logger

	mu      sync.Mutex
	running bool
}

func New(state *tracking.MintState, source Source, notify notifier.Notifier, opts Options, log *slog.Logger) *Tracker {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Window <= 0 {
		opts.Window = 0.9
	}
	if log == nil {
		log = slog.Default()
	}
	thresholds := append([]float64(nil), opts.Thresholds...)
	sort.Float64s(thresholds)

	return &Tracker{
		state:      state,
		source:     source,
		notify:     notify,
		interval:   opts.Interval,
		thresholds: thresholds,
		window:     opts.Window,
		log:        log,
	}
}

// Start polls until ctx is cancelled or no guild has a mint channel left.
// It returns immediately if the tracker is already running.
func (t *Tracker) Start(ctx context.Context) {
	if !t.claim() {
		return
	}
	t.run(ctx)
}

// Ensure starts the tracker in the background unless it is already running.
func (t *Tracker) Ensure(ctx context.Context) {
	if t.claim() {
		go t.run(ctx)
	}
}

// claim marks the loop running if it is idle and some guild has a mint channel.
func (t *Tracker) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return false
	}
	if !t.state.HasChannels() {
		t.log.Info("mint tracker not started, no mint channels")
		return false
	}
	t.running = true
	return true
}

// release clears the running flag when the loop has to stop. It checks channels
// under the same lock as claim, so a channel added meanwhile either keeps this
// loop going or lets Ensure start a new one.
func (t *Tracker) release(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ctx.Err() == nil && t.state.HasChannels() {
		return false
	}
	t.running = false
	return true
}

func (t *Tracker) run(ctx context.Context) {
	t.log.Info("mint tracker started", "interval", t.interval, "thresholds", t.thresholds)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.release(ctx)
			t.log.Info("mint tracker stopped")
			return
		case <-ticker.C:
			if t.release(ctx) {
				t.log.Info("mint tracker stopped, no mint channels left")
				return
			}
			t.Tick(ctx)
		}
	}
}

// Running reports whether the polling loop is active.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Tick checks every trending rune once against the thresholds of every guild.
func (t *Tracker) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("mint tick panicked", "panic", r)
			sentry.CurrentHub().Recover(r)
		}
	}()

	hot, err := t.source.HotRunes(ctx)
	if err != nil {
		t.log.Warn("fetch hot runes", "error", err)
		return
	}

	channels := t.state.MintChannels()
	guilds := make([]string, 0, len(channels))
	for g := range channels {
		guilds = append(guilds, g)
	}
	sort.Strings(guilds)

	announced := 0
	for _, token := range hot {
		var details *satosea.RuneDetails
		for _, guild := range guilds {
			threshold, ok := t.match(guild, token)
			if !ok {
				continue
			}

			if details == nil {
				details, err = t.source.RuneInfo(ctx, token.Tick)
				if err != nil {
					t.log.Warn("fetch rune details", "token", token.Tick, "error", err)
					break
				}
			}

			// last_sent_percentage records the threshold announced.
			if !t.state.MarkThresholdSent(guild, token.Tick, threshold, threshold) {
				continue
			}
			announced++
			metrics.MintAnnouncements.WithLabelValues(storage.FormatThreshold(threshold)).Inc()

			for _, channel := range channels[guild] {
				err := t.notify.NotifyMint(ctx, notifier.MintNotification{
					Guild:      guild,
					ChannelID:  channel,
					Token:      token.Tick,
					Threshold:  threshold,
					Percentage: token.Progress,
					Rune:       *details,
				})
				if err != nil {
					t.log.Warn("send mint notification", "guild", guild, "channel_id", channel, "error", err)
				}
			}
			t.log.Info("mint threshold announced",
				"token", token.Tick,
				"guild", guild,
				"threshold", threshold,
				"progress", token.Progress,
			)
		}
	}

	if announced > 0 {
		if err := t.state.Flush(ctx); err != nil {
			metrics.PersistFailures.WithLabelValues("mint").Inc()
			t.log.Error("flush mint state", "error", err)
			sentry.CaptureException(err)
		}
	}
}

// match returns the unsent threshold whose window [t, t+window) holds the
// token's progress. A jump past a whole window is never announced.
func (t *Tracker) match(guild string, token satosea.HotRune) (float64, bool) {
	for _, threshold := range t.thresholds {
		if token.Progress < threshold || token.Progress >= threshold+t.window {
			continue
		}
		if t.state.ThresholdSent(guild, token.Tick, threshold) {
			continue
		}
		return threshold, true
	}
	return 0, false
}
