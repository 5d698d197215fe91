package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/getsentry/sentry-go"

	"github.com/suspectuso/ord-tracker/internal/bitcoin"
	"github.com/suspectuso/ord-tracker/internal/metrics"
	"github.com/suspectuso/ord-tracker/internal/storage"
)

// Wallet is a tracked wallet as listed for a scope.
type Wallet struct {
	Address string `json:"address"`
	storage.WalletConfig
}

// Target is one (scope, wallet) pair the polling loop should process.
type Target struct {
	Scope   Scope
	Address string
	Config  storage.WalletConfig

	// OutputChannel receives notifications and, with the scope key, keys the
	// seen-set.
	OutputChannel string
}

// State is the in-memory tracking state. All access goes through its mutex; the
// persisted document is rewritten whole on Flush.
type State struct {
	mu      sync.Mutex
	backend storage.Backend
	params  *chaincfg.Params
	doc     *storage.TrackingDocument
	seen    map[seenKey]map[string]struct{}
	log     *slog.Logger
}

type seenKey struct {
	scope, channel, wallet string
}

func (t Target) seenKey() seenKey {
	return seenKey{t.Scope.Key(), t.OutputChannel, t.Address}
}

func NewState(backend storage.Backend, params *chaincfg.Params, log *slog.Logger) *State {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	if log == nil {
		log = slog.Default()
	}
	s := &State{
		backend: backend,
		params:  params,
		log:     log,
	}
	s.reset(storage.NewTrackingDocument())
	return s
}

// Load replaces the in-memory state with the persisted one. On error the state is
// left empty and the error is returned for logging; it is never fatal.
func (s *State) Load(ctx context.Context) error {
	doc, err := s.backend.LoadTracking(ctx)
	if doc == nil {
		doc = storage.NewTrackingDocument()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.reset(storage.NewTrackingDocument())
		return fmt.Errorf("load tracking state: %w", err)
	}
	s.reset(doc)
	return nil
}

func (s *State) reset(doc *storage.TrackingDocument) {
	s.doc = doc
	s.seen = make(map[seenKey]map[string]struct{})
	for scope, channels := range doc.TransactionHistory {
		for channel, wallets := range channels {
			for wallet, ids := range wallets {
				set := make(map[string]struct{}, len(ids))
				for _, id := range ids {
					set[id] = struct{}{}
				}
				s.seen[seenKey{scope, channel, wallet}] = set
			}
		}
	}
}

// Flush writes the full state. Seen ids are deduplicated and sorted first.
func (s *State) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *State) flushLocked(ctx context.Context) error {
	for scope, channels := range s.doc.TransactionHistory {
		for channel, wallets := range channels {
			for wallet := range wallets {
				wallets[wallet] = sortedIDs(s.seen[seenKey{scope, channel, wallet}])
			}
		}
	}
	if err := s.backend.SaveTracking(ctx, s.doc); err != nil {
		return fmt.Errorf("save tracking state: %w", err)
	}
	return nil
}

// persistLocked saves after an admin mutation. The in-memory change stands even
// when the write fails.
func (s *State) persistLocked(ctx context.Context) {
	if err := s.flushLocked(ctx); err != nil {
		s.log.Error("persist tracking state", "error", err)
		metrics.PersistFailures.WithLabelValues("tracking").Inc()
		sentry.CaptureException(err)
	}
}

// AddWallet registers address in scope and returns its normalized form.
func (s *State) AddWallet(ctx context.Context, scope Scope, address string, cfg storage.WalletConfig) (string, error) {
	if err := scope.Validate(); err != nil {
		return "", err
	}
	normalized, err := bitcoin.NormalizeAddress(address, s.params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		cfg.Name = bitcoin.ShortAddr(normalized, 6)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := scope.Key()
	if _, ok := s.doc.TrackedWallets[key][normalized]; ok {
		return "", fmt.Errorf("%w: wallet %s in %s", storage.ErrAlreadyExists, normalized, key)
	}
	if s.doc.TrackedWallets[key] == nil {
		s.doc.TrackedWallets[key] = make(map[string]storage.WalletConfig)
	}
	s.doc.TrackedWallets[key][normalized] = cfg
	s.persistLocked(ctx)

	return normalized, nil
}

// RemoveWallet stops tracking address in scope. Its seen-set is kept.
func (s *State) RemoveWallet(ctx context.Context, scope Scope, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scope.Key()
	wallets := s.doc.TrackedWallets[key]
	addr := strings.TrimSpace(address)
	if _, ok := wallets[addr]; !ok {
		normalized, err := bitcoin.NormalizeAddress(addr, s.params)
		if err != nil {
			return fmt.Errorf("%w: wallet %s in %s", storage.ErrNotFound, addr, key)
		}
		addr = normalized
	}
	if _, ok := wallets[addr]; !ok {
		return fmt.Errorf("%w: wallet %s in %s", storage.ErrNotFound, addr, key)
	}

	delete(wallets, addr)
	if len(wallets) == 0 {
		delete(s.doc.TrackedWallets, key)
	}
	s.persistLocked(ctx)
	return nil
}

// SetOutputChannel sets where notifications for scope go. Last write wins.
func (s *State) SetOutputChannel(ctx context.Context, scope Scope, channel string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return fmt.Errorf("%w: channel is required", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.OutputChannels[scope.Key()] = storage.ChannelID(channel)
	s.persistLocked(ctx)
	return nil
}

// OutputChannel resolves the destination for scope: exact key first, then the guild.
func (s *State) OutputChannel(scope Scope) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputLocked(scope)
}

func (s *State) outputLocked(scope Scope) (string, bool) {
	if ch, ok := s.doc.OutputChannels[scope.Key()]; ok && ch != "" {
		return string(ch), true
	}
	if ch, ok := s.doc.OutputChannels[scope.Guild]; ok && ch != "" {
		return string(ch), true
	}
	return "", false
}

// ListWallets returns the wallets of scope sorted by address.
func (s *State) ListWallets(scope Scope) []Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallets := s.doc.TrackedWallets[scope.Key()]
	out := make([]Wallet, 0, len(wallets))
	for addr, cfg := range wallets {
		out = append(out, Wallet{Address: addr, WalletConfig: cfg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Targets snapshots every tracked wallet that has an output channel, in a
// deterministic order.
func (s *State) Targets() []Target {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Target
	for key, wallets := range s.doc.TrackedWallets {
		scope := ParseScope(key)
		output, ok := s.outputLocked(scope)
		if !ok {
			continue
		}
		for addr, cfg := range wallets {
			out = append(out, Target{
				Scope:         scope,
				Address:       addr,
				Config:        cfg,
				OutputChannel: output,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if ki, kj := out[i].Scope.Key(), out[j].Scope.Key(); ki != kj {
			return ki < kj
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// Target returns the polling target for address in scope. It is false when the
// wallet is not tracked there or the scope has no output channel.
func (s *State) Target(scope Scope, address string) (Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallets := s.doc.TrackedWallets[scope.Key()]
	addr := strings.TrimSpace(address)
	cfg, ok := wallets[addr]
	if !ok {
		if normalized, err := bitcoin.NormalizeAddress(addr, s.params); err == nil {
			addr = normalized
			cfg, ok = wallets[addr]
		}
	}
	if !ok {
		return Target{}, false
	}
	output, ok := s.outputLocked(scope)
	if !ok {
		return Target{}, false
	}
	return Target{Scope: scope, Address: addr, Config: cfg, OutputChannel: output}, true
}

// IsSeen reports whether id was already notified for the target.
func (s *State) IsSeen(t Target, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[t.seenKey()][id]
	return ok
}

// MarkSeen records id for the target and reports whether it was new. Callers
// notify only when it returns true.
func (s *State) MarkSeen(t Target, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := t.seenKey()
	set := s.seen[k]
	if _, ok := set[id]; ok {
		return false
	}
	if set == nil {
		set = make(map[string]struct{})
		s.seen[k] = set
	}
	set[id] = struct{}{}

	channels := s.doc.TransactionHistory[k.scope]
	if channels == nil {
		channels = make(map[string]map[string][]string)
		s.doc.TransactionHistory[k.scope] = channels
	}
	if channels[k.channel] == nil {
		channels[k.channel] = make(map[string][]string)
	}
	channels[k.channel][k.wallet] = append(channels[k.channel][k.wallet], id)
	return true
}

// SeenCount returns the number of notified ids for the target.
func (s *State) SeenCount(t Target) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen[t.seenKey()])
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
