package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/validate"
	"github.com/joho/godotenv"

	"go-battleship/config"
	"go-battleship/domain/room"
	"go-battleship/domain/session"
	"go-battleship/server"
	"go-battleship/storage/sqlite"
	"go-battleship/telemetry"
	"go-battleship/utils"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("error loading .env",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		slog.Error("error parsing config",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	level, _ := cfg.Level()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flush traces", slog.String("error", err.Error()))
		}
	}()

	hub := server.NewHub(logger)
	dirOpts := []session.Option{session.WithLogger(logger)}
	var roomOpts []room.Option
	if cfg.ResultsDB != "" {
		store, err := sqlite.Open(ctx, cfg.ResultsDB)
		if err != nil {
			return fmt.Errorf("open results db: %w", err)
		}
		defer store.Close()
		dirOpts = append(dirOpts, session.WithResultRecorder(store))
		roomOpts = append(roomOpts, room.WithResults(store))
	}
	dir := session.NewDirectory(hub, dirOpts...)

	handlerOpts := []server.HandlerOption{
		server.WithSendBuffer(cfg.SendBuffer),
		server.WithHandlerLogger(logger),
	}
	if cfg.JWTSecret != "" {
		handlerOpts = append(handlerOpts, server.WithAuthenticator(server.NewAuthenticator(cfg.JWTSecret)))
	}

	mux := http.NewServeMux()
	validateInterceptor, err := validate.NewInterceptor()
	if err != nil {
		return fmt.Errorf("create interceptor: %w", err)
	}

	// Connect handlers
	roomSvc := room.NewDirectoryService(dir, append(roomOpts, room.WithLogger(logger))...)
	roomServicePath, roomServiceHandler := server.NewRoomServiceHandler(
		server.New(roomSvc),
		connect.WithInterceptors(validateInterceptor),
	)
	mux.Handle(roomServicePath, roomServiceHandler)
	mux.Handle("/ws", server.NewGameHandler(dir, hub, handlerOpts...))
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/", staticHandler(cfg.StaticDir))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           utils.WithCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server running", slog.String("addr", cfg.HTTPAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// staticHandler serves the built web client, falling back to index.html for
// client-side routes.
func staticHandler(distDir string) http.Handler {
	fs := http.FileServer(http.Dir(distDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(distDir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fs.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(distDir, "index.html"))
	})
}
