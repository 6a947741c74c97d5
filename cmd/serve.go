package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/config"
	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/dataset"
	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/fuzzy"
	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/linkage"
	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/proximity"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an HTTP server that links posted feature collections",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(cfg.Server, cfg.Linkage()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// matchOptions overrides the configured linkage settings for one request.
type matchOptions struct {
	Mode          string   `json:"mode,omitempty"`
	DistanceModel string   `json:"distance_model,omitempty"`
	MaxDistance   *float64 `json:"max_distance,omitempty"`
	Scorer        string   `json:"scorer,omitempty"`
	Threshold     *float64 `json:"threshold,omitempty"`
	KeyField      string   `json:"key_field,omitempty"`
	NameFields    []string `json:"name_fields,omitempty"`
	IDField       string   `json:"id_field,omitempty"`
	Workers       int      `json:"workers,omitempty"`
}

func (o matchOptions) apply(base linkage.Config) linkage.Config {
	c := base
	if o.Mode != "" {
		c.Mode = linkage.Mode(o.Mode)
	}
	if o.DistanceModel != "" {
		c.DistanceModel = proximity.DistanceModel(o.DistanceModel)
	}
	if o.MaxDistance != nil {
		c.MaxDistance = *o.MaxDistance
	}
	if o.Scorer != "" {
		c.Scorer = fuzzy.Scorer(o.Scorer)
	}
	if o.Threshold != nil {
		c.Threshold = *o.Threshold
	}
	if o.KeyField != "" {
		c.KeyField = o.KeyField
	}
	if len(o.NameFields) > 0 {
		c.NameFields = o.NameFields
	}
	if o.IDField != "" {
		c.IDField = o.IDField
	}
	if o.Workers > 0 {
		c.Workers = o.Workers
	}
	return c
}

type matchRequest struct {
	Historical json.RawMessage `json:"historical"`
	Reference  json.RawMessage `json:"reference"`
	Options    matchOptions    `json:"options"`
}

type matchResponse struct {
	RunID    string                     `json:"run_id"`
	Stats    linkage.Stats              `json:"stats"`
	Features []*geojson.Feature         `json:"features"`
	Paired   *geojson.FeatureCollection `json:"paired"`
}

// newRouter builds the HTTP handler. base holds the configured linkage
// settings that requests may override.
func newRouter(sc config.ServerConfig, base linkage.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: sc.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	limiter := rate.NewLimiter(rate.Limit(sc.RateLimit), sc.Burst)
	maxBody := int64(sc.MaxBodyMB) << 20
	r.With(rateLimit(limiter)).Post("/v1/match", func(w http.ResponseWriter, r *http.Request) {
		handleMatch(w, r, base, maxBody)
	})

	return r
}

func rateLimit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleMatch(w http.ResponseWriter, r *http.Request, base linkage.Config, maxBody int64) {
	if maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	}

	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Historical) == 0 || len(req.Reference) == 0 {
		writeError(w, http.StatusBadRequest, "historical and reference are required")
		return
	}

	ctx := r.Context()
	historical, err := dataset.DecodeFeatures(ctx, bytes.NewReader(req.Historical))
	if err != nil {
		writeError(w, http.StatusBadRequest, "historical: "+err.Error())
		return
	}
	reference, err := dataset.DecodeFeatures(ctx, bytes.NewReader(req.Reference))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reference: "+err.Error())
		return
	}
	historical, _ = dataset.WithGeometry(historical)
	reference, _ = dataset.WithGeometry(reference)

	linker, err := linkage.New(req.Options.apply(base))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID := uuid.NewString()
	out, err := linker.Run(ctx, historical, reference)
	if err != nil {
		if eris.Is(err, linkage.ErrEmptyCandidatePool) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		zap.L().Error("server: match failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "match failed")
		return
	}

	zap.L().Info("server: match complete",
		zap.String("run_id", runID),
		zap.String("request_id", middleware.GetReqID(ctx)),
		zap.Int("matched", out.Stats.Matched),
	)
	writeJSON(w, http.StatusOK, matchResponse{
		RunID:    runID,
		Stats:    out.Stats,
		Features: out.Flat,
		Paired:   out.Paired,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
