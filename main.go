package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "mythica-server:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	if err := InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		return err
	}
	defer SyncLogger()

	tiles, err := loadTiles(cfg)
	if err != nil {
		return err
	}

	var (
		db     *DB
		auth   *Auth
		events *EventLog
	)
	if cfg.DBPath != "" {
		db, err = OpenDB(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		if auth, err = NewAuth(db, cfg.JWTSecret); err != nil {
			return err
		}
		events = NewEventLog(db)
		defer events.Stop()
		Log.Infow("accounts enabled", "db", cfg.DBPath)
	}

	policy := DefaultMovePolicy()
	policy.Validate = cfg.Validate
	policy.StepInterval = cfg.StepInterval

	rooms := NewRoomManager(cfg.DefaultRoom, cfg.MaxRooms, RoomOptions{
		Tiles:      tiles,
		MaxPlayers: cfg.MaxPlayers,
		TickRate:   cfg.TickRate,
		Policy:     policy,
		Events:     events,
	})
	defer rooms.Shutdown()

	hub := NewHub(rooms, db, auth)
	go hub.Run()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{Addr: cfg.Addr, Handler: SetupRoutes(hub, cfg.PublicURL, cfg.AdminToken)}
	errc := make(chan error, 1)
	go func() {
		Log.Infow("server starting", "addr", cfg.Addr, "room", rooms.DefaultRoom(), "validate", cfg.Validate)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		Log.Warnw("http shutdown", "err", err)
	}
	// Upgraded sockets outlive server.Shutdown; save players before the DB closes
	hub.Shutdown()
	return nil
}

func loadTiles(cfg Config) (*TileMap, error) {
	if cfg.MapFile == "" {
		return DefaultMap(DefaultMapWidth, DefaultMapHeight, cfg.MapSeed), nil
	}
	m, err := LoadMap(cfg.MapFile)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", cfg.MapFile, err)
	}
	return m, nil
}
