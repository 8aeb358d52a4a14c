// Command moddeck is the chat moderation deck backend. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Joins the configured Twitch channels and annotates every message.
//   - Starts background jobs: channel snapshots and the OAuth token refresher.
//   - Exposes the HTTP API with /healthz, /status, /metrics, channel and
//     moderation endpoints, and per-channel SSE streams.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/moddeck/annotate"
	"github.com/onnwee/moddeck/chat"
	"github.com/onnwee/moddeck/config"
	"github.com/onnwee/moddeck/db"
	"github.com/onnwee/moddeck/filter"
	"github.com/onnwee/moddeck/moderation"
	"github.com/onnwee/moddeck/oauth"
	"github.com/onnwee/moddeck/resolver"
	"github.com/onnwee/moddeck/server"
	"github.com/onnwee/moddeck/store"
	"github.com/onnwee/moddeck/telemetry"
	"github.com/onnwee/moddeck/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	if format != "json" {
		format = "text"
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("moddeck", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Helix clients. The app token covers lookups (user ids, badges); the
	// stored user token drives moderation.
	var helixClient *twitchapi.HelixClient
	var modClient *twitchapi.ModClient
	if cfg.HelixReady() {
		helixClient = &twitchapi.HelixClient{
			AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
			ClientID:       cfg.TwitchClientID,
		}
		modClient = &twitchapi.ModClient{
			Helix:          helixClient,
			Tokens:         &db.UserTokenProvider{DB: database},
			ModeratorLogin: cfg.TwitchBotUsername,
		}
	} else {
		slog.Warn("helix disabled (missing TWITCH_CLIENT_ID/TWITCH_CLIENT_SECRET); badge resolution is static-only and moderation uses legacy IRC commands")
	}

	// Core state and pipeline.
	st := store.New()
	hub := store.NewHub()
	pending := store.NewPendingReplies()
	res := &resolver.Resolver{}
	if helixClient != nil {
		res.Source = helixClient
	}
	annotator := annotate.New(st, res, pending, cfg.TwitchBotUsername)
	annotator.SetKeywords(cfg.MentionKeywords)
	pipeline := &annotate.Pipeline{Annotator: annotator, Store: st, Resolver: res, Hub: hub}

	// Chat connections.
	manager := chat.NewManager(cfg.TwitchBotUsername, cfg.TwitchOAuthToken, pipeline.Handle)
	if manager.Anonymous() {
		slog.Info("no chat credentials; reading anonymously (no sends, legacy moderation disabled)")
	}

	facade := moderation.New(st, hub, modFromClient(modClient), manager, pending, cfg.TwitchBotUsername)
	facade.Sink = &db.ModerationLogSink{DB: database}
	engine := filter.NewEngine(st, hub)

	// Warm global badge/emote tables before joining anything.
	func() {
		warmCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		err := res.RefreshGlobal(warmCtx)
		telemetry.IncResolverRefresh("global", err == nil)
		if err != nil {
			slog.Warn("global badge/emote refresh failed", slog.Any("err", err))
		}
	}()

	// Join configured channels, restoring each from its last snapshot.
	for _, channel := range cfg.Channels {
		st.AddChannel(channel)
		st.SetState(channel, store.StateConnecting)
		if err := db.RestoreChannel(ctx, database, st, channel, cfg.SnapshotLimit); err != nil {
			slog.Warn("snapshot restore failed", slog.String("channel", channel), slog.Any("err", err))
		}
		if err := manager.Connect(channel); err != nil {
			slog.Error("channel connect failed", slog.String("channel", channel), slog.Any("err", err))
		}
	}

	// Background jobs.
	db.StartSnapshotJob(ctx, database, st, cfg.SnapshotInterval)
	oauth.StartRefresher(ctx, database, "twitch", 5*time.Minute, 15*time.Minute, func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		tok, err := twitchapi.RefreshToken(rctx, cfg.TwitchClientID, cfg.TwitchClientSecret, refreshToken)
		if err != nil {
			return "", "", time.Time{}, "", err
		}
		return tok.AccessToken, tok.RefreshToken, twitchapi.ComputeExpiry(tok.ExpiresIn), strings.Join(tok.Scope, " "), nil
	})

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP API
	deps := server.Deps{
		DB:        database,
		Cfg:       cfg,
		Store:     st,
		Hub:       hub,
		Filters:   engine,
		Annotator: annotator,
		Facade:    facade,
		Resolver:  res,
		Chat:      manager,
	}
	go func() {
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal, then take a final snapshot sweep so no
	// held messages are lost.
	<-ctx.Done()
	slog.Info("shutting down")
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	for _, channel := range st.Channels() {
		if err := db.SaveChannelSnapshot(flushCtx, database, st, channel); err != nil {
			slog.Error("final snapshot failed", slog.String("channel", channel), slog.Any("err", err))
		}
	}
}

// modFromClient keeps the facade's helix field a typed nil-free interface:
// a nil *ModClient must become a nil interface, not a non-nil interface
// wrapping a nil pointer.
func modFromClient(c *twitchapi.ModClient) moderation.HelixModerator {
	if c == nil {
		return nil
	}
	return c
}
