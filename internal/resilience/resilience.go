// Package resilience wraps outbound HTTP calls in a circuit breaker so a dead
// upstream (weather, translation, speech) fails fast instead of tying up
// every update for the full request timeout.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned without calling the upstream while the breaker
// is open or its half-open trial quota is used up.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker defaults.
const (
	DefaultMaxFailures   = 5
	DefaultHalfOpenLimit = 1
	DefaultCooldown      = 60 * time.Second
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of CircuitState.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF-OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

func mapState(state gobreaker.State) CircuitState {
	switch state {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// Config holds configuration for a Breaker. Zero values take the defaults.
type Config struct {
	Name          string
	MaxFailures   int
	HalfOpenLimit int
	Cooldown      time.Duration
	Logger        *slog.Logger
}

// Breaker counts consecutive upstream failures and opens after MaxFailures
// of them. After Cooldown it lets HalfOpenLimit trial requests through.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// New creates a Breaker.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.HalfOpenLimit <= 0 {
		cfg.HalfOpenLimit = DefaultHalfOpenLimit
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	maxFailures := uint32(cfg.MaxFailures)
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: uint32(cfg.HalfOpenLimit),
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "name", name, "from", mapState(from), "to", mapState(to))
		},
	}

	return &Breaker{name: cfg.Name, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() CircuitState { return mapState(b.cb.State()) }

// Execute runs op through the breaker. Errors for which countsAsFailure
// returns false are passed through without counting against the upstream.
func (b *Breaker) Execute(op func() error, countsAsFailure func(error) bool) error {
	var passThrough error
	_, err := b.cb.Execute(func() (any, error) {
		err := op()
		if err != nil && countsAsFailure != nil && !countsAsFailure(err) {
			passThrough = err
			return nil, nil
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	}
	if err != nil {
		return err
	}
	return passThrough
}

// errServer marks a 5xx response inside the breaker.
type errServer struct{ code int }

func (e errServer) Error() string { return fmt.Sprintf("server error %d", e.code) }

// Transport returns a RoundTripper that sends every request through b.
// Network errors and 5xx responses count as failures; cancellation by the
// caller and 4xx responses do not.
func Transport(b *Breaker, base http.RoundTripper) http.RoundTripper {
	return &breakerTransport{breaker: b, base: base}
}

type breakerTransport struct {
	breaker *Breaker
	base    http.RoundTripper
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := t.breaker.Execute(func() error {
		var err error
		resp, err = t.base.RoundTrip(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return errServer{code: resp.StatusCode}
		}
		return nil
	}, func(err error) bool {
		return req.Context().Err() == nil
	})

	var se errServer
	if errors.As(err, &se) {
		// The response is still returned so callers see the real status.
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
