package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"torrentcast/internal/app"
	"torrentcast/internal/bot"
	"torrentcast/internal/convert"
	"torrentcast/internal/media"
	"torrentcast/internal/metrics"
	"torrentcast/internal/telegram"
	"torrentcast/internal/telemetry"
	"torrentcast/internal/transmission"
	"torrentcast/internal/upnp"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "torrentcast")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "torrentcast"),
		slog.String("transmissionUrl", cfg.TransmissionURL),
		slog.String("mediaAddr", cfg.MediaAddr),
		slog.String("dirTvShows", cfg.DirTVShows),
		slog.String("dirMovies", cfg.DirMovies),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("passwordPolicy", string(cfg.PasswordPolicy)),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := transmission.New(cfg.TransmissionURL, logger)
	if err != nil {
		logger.Error("transmission client init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	files := media.NewFileRegistry()
	notify := media.NewNotifyRegistry()
	hub := media.NewStatusHub(logger)
	handler := media.NewHandler(client, files, notify, logger)
	routes := media.NewRoutes(handler, hub, logger, cfg.RateLimitRPS, cfg.RateLimitBurst)
	server := media.NewServer(cfg.MediaAddr, cfg.MediaWorkers, routes, logger)
	if err := server.Start(); err != nil {
		logger.Error("media server start failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	converter := convert.New(cfg.FFmpegPath, []string{cfg.DirMovies, cfg.DirTVShows}, logger)
	soap := upnp.NewSOAPClient(logger)

	transport, err := telegram.New(cfg.TelegramToken, logger, telegram.Options{})
	if err != nil {
		logger.Error("telegram transport init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	b := bot.New(transport, bot.Deps{
		Config:    cfg,
		Client:    client,
		Converter: converter,
		Discover: func(ctx context.Context) ([]*upnp.Device, error) {
			ctx, cancel := context.WithTimeout(ctx, cfg.DiscoveryTimeout+5*time.Second)
			defer cancel()
			devices, err := upnp.Discover(ctx, cfg.DiscoveryTimeout, logger)
			if err != nil {
				return nil, err
			}
			if cfg.AdvertiseIP != "" {
				for _, device := range devices {
					device.LocalIP = cfg.AdvertiseIP
				}
			}
			return devices, nil
		},
		NewController: func(device *upnp.Device) bot.CastController {
			return upnp.NewController(device, soap, server, files, notify, logger)
		},
		Logger: logger,
	})

	transport.Attach(rootCtx, b.Router)
	go broadcastTorrents(rootCtx, client, hub, logger)
	go transport.Start()

	logger.Info("bot started", slog.String("mediaAddr", server.Addr()))

	<-rootCtx.Done()
	logger.Info("shutdown signal received")

	transport.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	b.Close(shutdownCtx)
	server.Stop()
	hub.Close()

	logger.Info("bot stopped")
}

// broadcastTorrents pushes the torrent list to websocket status clients.
func broadcastTorrents(ctx context.Context, client *transmission.Client, hub *media.StatusHub, logger *slog.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			torrents, err := client.List(ctx)
			if err != nil {
				logger.Debug("torrent broadcast skipped", slog.String("error", err.Error()))
				continue
			}
			hub.BroadcastTorrents(torrents)
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
