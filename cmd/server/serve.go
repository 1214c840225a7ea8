package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soaringjerry/Sigmo/internal/api"
	"github.com/soaringjerry/Sigmo/internal/config"
	"github.com/soaringjerry/Sigmo/internal/middleware"
	"github.com/soaringjerry/Sigmo/internal/utils"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c.cfg, c.logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("close store", zap.Error(cerr))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newHandler(a, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sigmo server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("commit", versionCommit()))
		errCh <- srv.ListenAndServe()
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func newHandler(a *app, cfg *config.Config, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	api.NewRouter(a.svc, a.auth, logger.Named("api")).Register(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		locale := middleware.LocaleFromContext(r.Context())
		writeJSON(w, map[string]any{
			"ok":         true,
			"name":       "Sigmo API",
			"locale":     locale,
			"msg":        utils.T(locale, "health.ok"),
			"commit":     versionCommit(),
			"build_time": versionBuildTime(),
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"commit":     versionCommit(),
			"build_time": versionBuildTime(),
		})
	})

	if dir := cfg.Server.StaticDir; dir != "" {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			mux.Handle("/", http.FileServer(http.Dir(dir)))
		} else {
			logger.Info("static dir not found, serving API only", zap.String("dir", dir))
		}
	}

	var h http.Handler = mux
	h = middleware.LocaleMiddleware(h)
	h = middleware.NoStore(h)
	h = middleware.SecureHeaders(h)
	h = middleware.CORS(cfg.Server.AllowedOrigins)(h)
	h = middleware.RequestLogger(logger.Named("http"))(h)
	return h
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func versionCommit() string { return utils.SafeEnv("SIGMO_COMMIT", commit) }

func versionBuildTime() string { return utils.SafeEnv("SIGMO_BUILD_TIME", buildTime) }
