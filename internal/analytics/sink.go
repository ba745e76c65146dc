package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	perrors "github.com/p-blackswan/therapy-booking/internal/errors"
	"github.com/p-blackswan/therapy-booking/internal/requestid"
	"github.com/p-blackswan/therapy-booking/internal/retry"
)

// Sink delivers events somewhere.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// LogSink writes events to the structured log. Used when no collector is
// configured.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "analytics_log").Logger()}
}

// Send logs the event at info level.
func (s *LogSink) Send(_ context.Context, ev Event) error {
	s.logger.Info().
		Str("event", string(ev.Name)).
		Str("event_id", ev.ID).
		Str("request_id", ev.RequestID).
		Fields(ev.Data).
		Msg("analytics event")
	return nil
}

// HTTPSinkConfig configures an HTTPSink.
type HTTPSinkConfig struct {
	Endpoint string
	Timeout  time.Duration
	Retry    retry.Config
	// Breaker trips after this many consecutive failed sends.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// HTTPSink POSTs events as JSON to a collector, retrying transient failures
// behind a circuit breaker.
type HTTPSink struct {
	endpoint string
	client   *http.Client
	retry    retry.Config
	breaker  *gobreaker.CircuitBreaker[struct{}]
	logger   zerolog.Logger
}

// NewHTTPSink creates an HTTPSink.
func NewHTTPSink(cfg HTTPSinkConfig, logger zerolog.Logger) *HTTPSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	s := &HTTPSink{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
		retry:    cfg.Retry,
		logger:   logger.With().Str("component", "analytics_http").Logger(),
	}

	s.retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn().Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("analytics delivery failed, retrying")
	}

	threshold := cfg.FailureThreshold
	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "analytics",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// The collector answered; a rejected payload says nothing about its health.
			var apiErr *perrors.APIError
			return errors.As(err, &apiErr) && !perrors.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return s
}

// Send delivers ev. An open breaker fails fast with ErrUnavailable.
func (s *HTTPSink) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	_, err = s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, retry.Do(ctx, s.retry, func(ctx context.Context) error {
			return s.post(ctx, body, ev.RequestID)
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("analytics collector: %w", perrors.ErrUnavailable)
	}
	return err
}

func (s *HTTPSink) post(ctx context.Context, body []byte, reqID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating analytics request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "therapy-booking-analytics/1.0")
	if reqID != "" {
		req.Header.Set(requestid.Header, reqID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &perrors.APIError{Service: "analytics", Message: "request failed", Err: err}
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return perrors.NewAPIError("analytics", resp.StatusCode, "unexpected status")
	}
	return nil
}
