package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/suspectuso/ord-tracker/internal/magiceden"
	"github.com/suspectuso/ord-tracker/internal/metrics"
	"github.com/suspectuso/ord-tracker/internal/pnl"
	"github.com/suspectuso/ord-tracker/internal/storage"
	"github.com/suspectuso/ord-tracker/internal/tracking"
	"github.com/suspectuso/ord-tracker/internal/upstream"
)

// FloorSource looks up rune and collection floors.
type FloorSource interface {
	Floor(ctx context.Context, kind, slug string) (*magiceden.Floor, error)
}

// PnLSource computes profit and loss for wallets in a rune.
type PnLSource interface {
	Calculate(ctx context.Context, runeName string, wallets []string) (*pnl.Summary, error)
}

// BacklogSeeder marks a wallet's existing activity as seen.
type BacklogSeeder interface {
	SeedBacklog(ctx context.Context, scope tracking.Scope, address string, pages int) (int, error)
}

// MintLoop is restarted when a mint channel is added.
type MintLoop interface {
	Ensure(ctx context.Context)
}

type Deps struct {
	State   *tracking.State
	Mint    *tracking.MintState
	Loop    MintLoop
	Floors  FloorSource
	PnL     PnLSource
	Backlog BacklogSeeder

	// BacklogPages is the default page count for backlog seeding.
	BacklogPages int
}

// Server is the operator API for wallets, output channels and mint channels.
type Server struct {
	deps   Deps
	log    *slog.Logger
	router http.Handler

	// ctx outlives requests; background loops started from handlers use it.
	ctx    context.Context
	server *http.Server
}

func NewServer(deps Deps, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{deps: deps, log: log, ctx: context.Background()}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.ctx = ctx
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("starting admin server", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLog)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/scopes/{guild}", func(g chi.Router) {
		s.scopeRoutes(g)
		g.Route("/{channel}", s.scopeRoutes)
	})

	r.Put("/guilds/{guild}/mint-channels/{channel}", s.handleAddMintChannel)
	r.Delete("/guilds/{guild}/mint-channels/{channel}", s.handleRemoveMintChannel)
	r.Get("/guilds/{guild}/mint-channels", s.handleListMintChannels)

	r.Get("/floor/{kind}/{slug}", s.handleFloor)
	r.Get("/pnl/{rune}", s.handlePnL)

	return r
}

func (s *Server) scopeRoutes(r chi.Router) {
	r.Use(s.validScope)
	r.Get("/wallets", s.handleListWallets)
	r.Post("/wallets", s.handleAddWallet)
	r.Delete("/wallets/{address}", s.handleRemoveWallet)
	r.Post("/wallets/{address}/seed", s.handleSeedBacklog)
	r.Get("/output", s.handleGetOutput)
	r.Put("/output", s.handleSetOutput)
}

// validScope rejects path ids that would not round-trip through a scope key.
func (s *Server) validScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := scopeFrom(r).Validate(); err != nil {
			s.fail(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", chimw.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func scopeFrom(r *http.Request) tracking.Scope {
	return tracking.Scope{
		Guild:   chi.URLParam(r, "guild"),
		Channel: chi.URLParam(r, "channel"),
	}
}

// --- Wallets ---

type addWalletRequest struct {
	Address   string           `json:"address"`
	Name      string           `json:"name"`
	TrackMint storage.TriState `json:"track_mint"`
	TrackBuy  storage.TriState `json:"track_buy"`
	TrackSell storage.TriState `json:"track_sell"`
}

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.State.ListWallets(scopeFrom(r)))
}

func (s *Server) handleAddWallet(w http.ResponseWriter, r *http.Request) {
	var req addWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	scope := scopeFrom(r)
	cfg := storage.WalletConfig{
		Name:      strings.TrimSpace(req.Name),
		TrackMint: req.TrackMint,
		TrackBuy:  req.TrackBuy,
		TrackSell: req.TrackSell,
	}
	address, err := s.deps.State.AddWallet(r.Context(), scope, req.Address, cfg)
	if err != nil {
		s.fail(w, err)
		return
	}

	for _, wallet := range s.deps.State.ListWallets(scope) {
		if wallet.Address == address {
			s.log.Info("wallet added", "scope", scope.Key(), "address", address)
			writeJSON(w, http.StatusCreated, wallet)
			return
		}
	}
	writeJSON(w, http.StatusCreated, tracking.Wallet{Address: address, WalletConfig: cfg})
}

func (s *Server) handleRemoveWallet(w http.ResponseWriter, r *http.Request) {
	scope := scopeFrom(r)
	address := chi.URLParam(r, "address")
	if err := s.deps.State.RemoveWallet(r.Context(), scope, address); err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info("wallet removed", "scope", scope.Key(), "address", address)
	w.WriteHeader(http.StatusNoContent)
}

// handleSeedBacklog takes an optional pages query parameter.
func (s *Server) handleSeedBacklog(w http.ResponseWriter, r *http.Request) {
	if s.deps.Backlog == nil {
		writeError(w, http.StatusNotImplemented, "backlog seeding not configured")
		return
	}

	pages := s.deps.BacklogPages
	if v := r.URL.Query().Get("pages"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "pages must be a positive integer")
			return
		}
		pages = n
	}

	scope := scopeFrom(r)
	address := chi.URLParam(r, "address")
	marked, err := s.deps.Backlog.SeedBacklog(r.Context(), scope, address, pages)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": marked})
}

// --- Output channels ---

type outputRequest struct {
	ChannelID storage.ChannelID `json:"channel_id"`
}

func (s *Server) handleGetOutput(w http.ResponseWriter, r *http.Request) {
	channel, ok := s.deps.State.OutputChannel(scopeFrom(r))
	if !ok {
		writeError(w, http.StatusNotFound, "no output channel")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"channel_id": channel})
}

func (s *Server) handleSetOutput(w http.ResponseWriter, r *http.Request) {
	var req outputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	scope := scopeFrom(r)
	if err := s.deps.State.SetOutputChannel(r.Context(), scope, string(req.ChannelID)); err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info("output channel set", "scope", scope.Key(), "channel_id", req.ChannelID)
	writeJSON(w, http.StatusOK, map[string]string{"channel_id": string(req.ChannelID)})
}

// --- Mint channels ---

func (s *Server) handleAddMintChannel(w http.ResponseWriter, r *http.Request) {
	guild, channel := chi.URLParam(r, "guild"), chi.URLParam(r, "channel")
	if err := s.deps.Mint.AddMintChannel(r.Context(), guild, channel); err != nil {
		s.fail(w, err)
		return
	}
	if s.deps.Loop != nil {
		s.deps.Loop.Ensure(s.ctx)
	}
	s.log.Info("mint channel added", "guild", guild, "channel_id", channel)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveMintChannel(w http.ResponseWriter, r *http.Request) {
	guild, channel := chi.URLParam(r, "guild"), chi.URLParam(r, "channel")
	if err := s.deps.Mint.RemoveMintChannel(r.Context(), guild, channel); err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info("mint channel removed", "guild", guild, "channel_id", channel)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMintChannels(w http.ResponseWriter, r *http.Request) {
	channels := s.deps.Mint.MintChannels()[chi.URLParam(r, "guild")]
	if channels == nil {
		channels = []string{}
	}
	writeJSON(w, http.StatusOK, channels)
}

// --- Market ---

func (s *Server) handleFloor(w http.ResponseWriter, r *http.Request) {
	if s.deps.Floors == nil {
		writeError(w, http.StatusNotImplemented, "market data not configured")
		return
	}
	floor, err := s.deps.Floors.Floor(r.Context(), chi.URLParam(r, "kind"), chi.URLParam(r, "slug"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, floor)
}

// handlePnL accepts wallets as repeated or comma-separated wallet parameters.
func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request) {
	if s.deps.PnL == nil {
		writeError(w, http.StatusNotImplemented, "market data not configured")
		return
	}

	var wallets []string
	for _, v := range r.URL.Query()["wallet"] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				wallets = append(wallets, part)
			}
		}
	}
	if len(wallets) == 0 {
		writeError(w, http.StatusBadRequest, "at least one wallet is required")
		return
	}

	summary, err := s.deps.PnL.Calculate(r.Context(), chi.URLParam(r, "rune"), wallets)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// --- Responses ---

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn("admin request failed", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrInvalidInput), errors.Is(err, magiceden.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, magiceden.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, upstream.ErrStatus), errors.Is(err, upstream.ErrMalformed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
