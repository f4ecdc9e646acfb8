package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"
	"tailscale.com/tsnet"

	"github.com/claude/treadmill/internal/config"
	"github.com/claude/treadmill/internal/display"
	"github.com/claude/treadmill/internal/kiosk"
	"github.com/claude/treadmill/internal/mcp"
	"github.com/claude/treadmill/internal/models"
	"github.com/claude/treadmill/internal/sensor"
	"github.com/claude/treadmill/internal/server"
	"github.com/claude/treadmill/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	mcpStdio := flag.Bool("mcp-stdio", false, "serve MCP over stdio instead of running the kiosk")
	remote := flag.String("remote", "", "kiosk base URL for -mcp-stdio (e.g. http://treadmill:8080)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}

	if *mcpStdio {
		// stdout carries the protocol, so logs go to stderr.
		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		if *remote == "" {
			fmt.Fprintf(os.Stderr, "Usage: treadmill -mcp-stdio -remote http://kiosk:8080\n")
			os.Exit(1)
		}
		srv := mcp.New(mcp.NewHTTPClient(*remote), Version, log)
		if err := mcpserver.ServeStdio(srv); err != nil {
			log.Error("mcp stdio failed", "error", err)
			os.Exit(1)
		}
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	log.Info("treadmill kiosk starting", "version", Version)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	settingsFile := config.NewSettingsFile(cfg.SettingsPath)
	settings, err := settingsFile.Load()
	if err != nil {
		log.Warn("settings file unusable, using defaults", "path", settingsFile.Path(), "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open session store
	store, err := storage.Open(ctx, storage.Options{
		Backend:        cfg.Storage.Backend,
		CSVPath:        cfg.Storage.CSVPath,
		SQLitePath:     cfg.Storage.SQLitePath,
		DSN:            cfg.Storage.Database.DSN(),
		MigrationsPath: cfg.Storage.MigrationsPath,
	})
	if err != nil {
		log.Error("failed to open session store", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("session store ready", "backend", cfg.Storage.Backend)

	// Display hub, relayed through Redis when configured
	var rc *redis.Client
	if cfg.Display.RedisAddr != "" {
		rc = display.ConnectRedis(cfg.Display.RedisAddr, cfg.Display.RedisPassword, cfg.Display.RedisDB)
		defer rc.Close()
	}
	hub, err := display.NewHub(ctx, rc, cfg.Display.Channel, log)
	if err != nil {
		log.Error("display relay unavailable", "addr", cfg.Display.RedisAddr, "error", err)
		os.Exit(1)
	}
	if rc != nil {
		log.Info("display relay connected", "addr", cfg.Display.RedisAddr)
	}

	// Sensor feed
	var k *kiosk.Kiosk
	var rate kiosk.RateSetter = noSensor{}
	var feed *sensor.Feed
	if !cfg.Serial.Disabled {
		feed = sensor.NewFeed(sensor.FeedConfig{
			Open:      sensor.SerialOpener(cfg.Serial.Port, cfg.Serial.BaudRate),
			OnSample:  func(s models.Sample) { k.Submit(s) },
			Watchdog:  cfg.Serial.Watchdog,
			Reconnect: cfg.Serial.Reconnect,
			Log:       log,
		})
		rate = feed
	} else {
		log.Info("serial disabled, kiosk runs without a sensor")
	}

	k = kiosk.New(kiosk.Options{
		Settings: settings,
		Store:    store,
		Display:  hub,
		Rate:     rate,
		Log:      log,
	})

	go func() {
		if err := k.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("kiosk loop stopped", "error", err)
		}
	}()
	if feed != nil {
		go func() {
			if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("sensor feed stopped", "error", err)
			}
		}()
	}

	// Admin API, display feed and MCP
	srv := server.New(k, store, settingsFile, cfg.Auth.APIKey, log)
	srv.Mount("/ws/display", display.Handler(hub, log))
	srv.Mount("/mcp", mcpserver.NewStreamableHTTPServer(mcp.New(mcp.Local{Store: store, Kiosk: k}, Version, log)))

	// Start server: tsnet or plain HTTP
	var listener net.Listener
	if cfg.Tailscale.Enabled {
		tsServer := &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr)
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}

// noSensor stands in for the feed when serial is disabled.
type noSensor struct{}

func (noSensor) SetInterval(int) error { return nil }
