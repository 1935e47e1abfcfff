package main

import (
	"context"
	"encoding/json"
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

	"github.com/corpwatch/mca-insights/internal/model"
	"github.com/corpwatch/mca-insights/internal/store"
	"github.com/corpwatch/mca-insights/internal/summary"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only query API over snapshots and the change log",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, "serve")
		if err != nil {
			return err
		}
		defer st.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           (&api{st: st}).router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("query api listening", zap.Int("port", cfg.Server.Port))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return eris.Wrap(err, "serve")
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "shutdown")
		}
		zap.L().Info("query api stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// api holds the handlers behind the query routes.
type api struct {
	st store.Store
}

func (a *api) router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", a.handleHealth)
	r.Get("/companies", a.handleCompanies)
	r.Get("/companies/{cin}", a.handleCompany)
	r.Get("/changes", a.handleChanges)
	r.Get("/summary", a.handleSummary)
	return r
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) handleCompanies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.CompanyFilter{
		CIN:    q.Get("cin"),
		State:  q.Get("state"),
		Status: q.Get("status"),
		Limit:  queryInt(q.Get("limit"), 100),
		Offset: queryInt(q.Get("offset"), 0),
	}

	records, err := a.st.ListCompanies(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []model.CanonicalRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(records),
		"companies": records,
	})
}

func (a *api) handleCompany(w http.ResponseWriter, r *http.Request) {
	cin := chi.URLParam(r, "cin")
	records, err := a.st.ListCompanies(r.Context(), store.CompanyFilter{CIN: cin, Limit: 1})
	if err != nil {
		writeError(w, err)
		return
	}
	if len(records) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "company not found"})
		return
	}

	body := map[string]any{"company": records[0]}
	prof, err := a.st.ProfileFor(r.Context(), cin)
	switch {
	case err == nil:
		body["profile"] = prof
	case !eris.Is(err, store.ErrNotFound):
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *api) handleChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ChangeFilter{
		CIN:    q.Get("cin"),
		Kind:   model.ChangeKind(q.Get("kind")),
		State:  q.Get("state"),
		Limit:  queryInt(q.Get("limit"), 100),
		Offset: queryInt(q.Get("offset"), 0),
	}

	for name, dst := range map[string]*time.Time{"since": &filter.Since, "until": &filter.Until} {
		if raw := q.Get(name); raw != "" {
			t, err := time.Parse("2006-01-02", raw)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"error": fmt.Sprintf("invalid %s date: %s", name, raw),
				})
				return
			}
			*dst = t
		}
	}

	events, err := a.st.ListChanges(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []model.ChangeEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(events),
		"changes": events,
	})
}

func (a *api) handleSummary(w http.ResponseWriter, r *http.Request) {
	snap, err := a.st.LatestSnapshot(r.Context())
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshots stored"})
			return
		}
		writeError(w, err)
		return
	}

	events, err := a.st.ListChanges(r.Context(), store.ChangeFilter{})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot": summary.Summarize(*snap),
		"changes":  summary.SummarizeChanges(events),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("query api request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
