package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/suspectuso/ord-tracker/internal/admin"
	"github.com/suspectuso/ord-tracker/internal/bestinslot"
	"github.com/suspectuso/ord-tracker/internal/bitcoin"
	"github.com/suspectuso/ord-tracker/internal/config"
	"github.com/suspectuso/ord-tracker/internal/engine"
	"github.com/suspectuso/ord-tracker/internal/magiceden"
	"github.com/suspectuso/ord-tracker/internal/metrics"
	"github.com/suspectuso/ord-tracker/internal/minttracker"
	"github.com/suspectuso/ord-tracker/internal/notifier"
	"github.com/suspectuso/ord-tracker/internal/pnl"
	"github.com/suspectuso/ord-tracker/internal/satosea"
	"github.com/suspectuso/ord-tracker/internal/storage"
	"github.com/suspectuso/ord-tracker/internal/telegram"
	"github.com/suspectuso/ord-tracker/internal/tracking"
	"github.com/suspectuso/ord-tracker/internal/upstream"
)

func main() {
	// Load .env file
	envErr := godotenv.Load()

	// Load config
	cfg := config.Load()

	// Setup logger
	log := newLogger(cfg)
	slog.SetDefault(log)
	if envErr != nil {
		log.Debug("no .env file found")
	}

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.AppEnv,
		}); err != nil {
			log.Warn("init sentry", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	metrics.Init()

	params, err := bitcoin.Params(cfg.BitcoinNetwork)
	if err != nil {
		log.Error("bitcoin network", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, err := storage.Open(ctx, storage.Options{
		Driver:        cfg.StoreDriver,
		DataDir:       cfg.DataDir,
		DBPath:        cfg.DBPath,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		RedisPrefix:   cfg.RedisPrefix,
	})
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "driver", cfg.StoreDriver)

	state := tracking.NewState(store, params, log)
	if err := state.Load(ctx); err != nil {
		log.Warn("load tracking state, starting empty", "error", err)
	}
	mintState := tracking.NewMintState(store, log)
	if err := mintState.Load(ctx); err != nil {
		log.Warn("load mint state, starting empty", "error", err)
	}

	// Upstream clients
	newUpstream := func(baseURL, token string) *upstream.Client {
		return upstream.New(upstream.Options{
			BaseURL:     baseURL,
			BearerToken: token,
			Timeout:     cfg.FetchTimeout,
			Retries:     cfg.FetchRetries,
			RPS:         cfg.UpstreamRPS,
		})
	}
	feeds := bestinslot.NewClient(newUpstream(cfg.BestInSlotBaseURL, ""))
	market := magiceden.NewClient(newUpstream(cfg.MagicEdenBaseURL, cfg.MagicEdenAPIKey))
	runes := satosea.NewClient(newUpstream(cfg.SatoseaBaseURL, ""))
	log.Info("upstream clients initialized",
		"bestinslot", cfg.BestInSlotBaseURL,
		"magiceden", cfg.MagicEdenBaseURL,
		"satosea", cfg.SatoseaBaseURL,
	)

	// Initialize notifier
	var (
		notify notifier.Notifier
		tgBot  *telegram.Bot
	)
	switch cfg.Notifier {
	case "telegram":
		tgBot, err = telegram.New(cfg.BotToken, log)
		if err != nil {
			log.Error("init telegram bot", "error", err)
			os.Exit(1)
		}
		notify = notifier.NewTelegram(tgBot)
		log.Info("telegram bot initialized", "token", cfg.MaskedBotToken())
	default:
		notify = notifier.NewLog(log)
		log.Info("notifications go to the log")
	}

	eng := engine.New(state, feeds, market, notify, engine.Options{
		Interval: cfg.PollInterval,
		Workers:  cfg.FetchWorkers,
	}, log)

	mint := minttracker.New(mintState, runes, notify, minttracker.Options{
		Interval:   cfg.MintPollInterval,
		Thresholds: cfg.MintThresholds,
		Window:     cfg.MintWindow,
	}, log)

	// Start admin server
	adminServer := admin.NewServer(admin.Deps{
		State:        state,
		Mint:         mintState,
		Loop:         mint,
		Floors:       market,
		PnL:          pnl.NewCalculator(market, cfg.PnLMaxPages),
		Backlog:      eng,
		BacklogPages: cfg.BacklogPages,
	}, log)
	go func() {
		if err := adminServer.Start(ctx, cfg.AdminAddr); err != nil && err != http.ErrServerClosed {
			log.Error("admin server", "error", err)
		}
	}()

	// Start polling loops
	go eng.Start(ctx)
	go mint.Start(ctx)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	if tgBot != nil {
		log.Info("starting bot polling...")
		tgBot.Start(ctx)
	} else {
		<-ctx.Done()
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := state.Flush(flushCtx); err != nil {
		log.Error("flush tracking state", "error", err)
	}
	if err := mintState.Flush(flushCtx); err != nil {
		log.Error("flush mint state", "error", err)
	}
}

// newLogger writes text logs to stdout and, when LOG_FILE is set, to a rotated file.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}
