package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-tracker/internal/service"
	"crypto-tracker/internal/storage"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw body.
const SignatureHeader = "X-EasyCron-Signature"

const maxBodyBytes = 1 << 20

// Pipeline runs one full fetch-persist-analyze cycle.
type Pipeline interface {
	RunCycle(ctx context.Context) (service.Result, error)
}

// Server exposes the webhook trigger endpoint and health check.
type Server struct {
	secret     string
	pipeline   Pipeline
	executions storage.ExecutionStore
	logger     zerolog.Logger
}

// NewServer constructs the webhook server.
func NewServer(secret string, pipeline Pipeline, executions storage.ExecutionStore, logger zerolog.Logger) *Server {
	return &Server{
		secret:     secret,
		pipeline:   pipeline,
		executions: executions,
		logger:     logger.With().Str("component", "webhook").Logger(),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)
	return r
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info().Str("addr", addr).Msg("webhook server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type triggerPayload struct {
	ExecutionID string  `json:"execution_id"`
	JobID       string  `json:"job_id"`
	ScheduledAt *string `json:"scheduled_at"`
	FiredAt     *string `json:"fired_at"`
}

type triggerResponse struct {
	Status     string   `json:"status"`
	SnapshotID int64    `json:"snapshot_id"`
	BTCUSD     *float64 `json:"btc_usd"`
	ETHUSD     *float64 `json:"eth_usd"`
	EURRate    *float64 `json:"eur_rate"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With().Str("request_id", uuid.NewString()).Logger()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if !VerifySignature(s.secret, body, r.Header.Get(SignatureHeader)) {
		logger.Warn().Msg("invalid webhook signature")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload triggerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.Error().Err(err).Msg("failed to parse webhook payload")
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	// The caller's payload shape is not strictly validated beyond the
	// signature and JSON well-formedness.
	executionID := payload.ExecutionID
	if executionID == "" {
		executionID = "unknown"
	}
	jobID := payload.JobID
	if jobID == "" {
		jobID = "unknown"
	}

	logger.Info().Str("execution_id", executionID).Str("job_id", jobID).Msg("received webhook trigger")

	rec := storage.ExecutionRecord{
		ExecutionID: executionID,
		JobID:       jobID,
		ScheduledAt: payload.ScheduledAt,
		FiredAt:     payload.FiredAt,
		Status:      storage.StatusProcessing,
	}
	if err := s.executions.LogExecution(r.Context(), rec); err != nil {
		logger.Error().Err(err).Str("execution_id", executionID).Msg("failed to record execution start")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result, err := s.pipeline.RunCycle(r.Context())
	if err != nil {
		logger.Error().Err(err).Str("execution_id", executionID).Msg("execution failed")
		msg := err.Error()
		if updateErr := s.executions.UpdateExecutionStatus(r.Context(), executionID, storage.StatusFailed, &msg); updateErr != nil {
			logger.Error().Err(updateErr).Str("execution_id", executionID).Msg("failed to mark execution failed")
		}
		writeError(w, http.StatusInternalServerError, msg)
		return
	}

	if err := s.executions.UpdateExecutionStatus(r.Context(), executionID, storage.StatusCompleted, nil); err != nil {
		logger.Error().Err(err).Str("execution_id", executionID).Msg("failed to mark execution completed")
	}

	logger.Info().
		Str("execution_id", executionID).
		Int64("snapshot_id", result.SnapshotID).
		Msg("execution completed")

	writeJSON(w, http.StatusOK, triggerResponse{
		Status:     "ok",
		SnapshotID: result.SnapshotID,
		BTCUSD:     toFloat(result.BTCUSD),
		ETHUSD:     toFloat(result.ETHUSD),
		EURRate:    toFloat(result.EURRate),
	})
}

// VerifySignature checks a hex HMAC-SHA256 signature over body in constant
// time. An empty signature never verifies.
func VerifySignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func toFloat(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}
