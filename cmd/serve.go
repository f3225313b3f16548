package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored runs over a read-only JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter mounts the run API over st.
func buildRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			filter := store.RunFilter{Mode: q.Get("mode")}
			var err error
			if filter.Limit, err = intParam(q.Get("limit")); err != nil {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			if filter.Offset, err = intParam(q.Get("offset")); err != nil {
				writeError(w, http.StatusBadRequest, "invalid offset")
				return
			}

			runs, err := st.ListRuns(req.Context(), filter)
			if err != nil {
				serverError(w, req, err)
				return
			}
			if runs == nil {
				runs = []store.Run{}
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				storeError(w, req, err)
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Get("/{id}/cells", func(w http.ResponseWriter, req *http.Request) {
			cells, err := st.Cells(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				storeError(w, req, err)
				return
			}
			if cells == nil {
				cells = []store.Cell{}
			}
			writeJSON(w, http.StatusOK, cells)
		})
	})

	return r
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func storeError(w http.ResponseWriter, req *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	serverError(w, req, err)
}

func serverError(w http.ResponseWriter, req *http.Request, err error) {
	zap.L().Error("request failed",
		zap.String("path", req.URL.Path),
		zap.String("request_id", middleware.GetReqID(req.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
