package store

import (
	"context"
	"sync"
	"time"

	"github.com/ivydigitalstorm/grr/pkg/blobstore"
	"github.com/ivydigitalstorm/grr/pkg/log"
	"github.com/ivydigitalstorm/grr/pkg/metrics"
)

// TokenMode controls how strictly a Store validates the caller-supplied
// authorization token.
type TokenMode int

const (
	// RequireToken rejects any call with an empty token.
	RequireToken TokenMode = iota
	// AllowDefault substitutes a configured default token when the caller
	// passes an empty one.
	AllowDefault
	// Anonymous never validates the token.
	Anonymous
)

// Config configures a Store at construction time.
type Config struct {
	Backend   Backend
	Blobstore blobstore.Store

	TokenMode    TokenMode
	DefaultToken string

	// FlushInterval is the period of the background flusher loop (§5).
	// Zero selects the default of 500ms.
	FlushInterval time.Duration
	// MonitorInterval is the period of the background size-monitor loop.
	// Zero selects the default of 60s.
	MonitorInterval time.Duration
	// DisableFlusher stops both background loops from starting; intended for
	// deterministic tests that want to call Flush explicitly.
	DisableFlusher bool
}

// Store is the process-wide handle onto a Backend and its Blobstore
// collaborator, plus the two background loops described in §5.
type Store struct {
	backend   Backend
	blobstore blobstore.Store
	tokenMode TokenMode
	defToken  string

	flushInterval   time.Duration
	monitorInterval time.Duration

	logger zerologLogger

	stopCh chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// zerologLogger narrows the logging dependency to the two methods this
// package needs, so tests can supply a stub without pulling in zerolog.
type zerologLogger interface {
	Warn(msg string)
	Error(msg string)
}

type packageLogger struct{}

func (packageLogger) Warn(msg string)  { log.WithComponent("store").Warn().Msg(msg) }
func (packageLogger) Error(msg string) { log.WithComponent("store").Error().Msg(msg) }

// New constructs a Store and, unless disabled, starts its background
// flusher and size-monitor loops.
func New(cfg Config) *Store {
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	monitorInterval := cfg.MonitorInterval
	if monitorInterval <= 0 {
		monitorInterval = 60 * time.Second
	}

	s := &Store{
		backend:         cfg.Backend,
		blobstore:       cfg.Blobstore,
		tokenMode:       cfg.TokenMode,
		defToken:        cfg.DefaultToken,
		flushInterval:   flushInterval,
		monitorInterval: monitorInterval,
		logger:          packageLogger{},
		stopCh:          make(chan struct{}),
	}

	if !cfg.DisableFlusher {
		s.wg.Add(2)
		go s.runFlusher()
		go s.runMonitor()
	}

	return s
}

// Backend returns the underlying Backend.
func (s *Store) Backend() Backend { return s.backend }

// Blobstore returns the blob-store collaborator.
func (s *Store) Blobstore() blobstore.Store { return s.blobstore }

// ResolveToken applies the configured TokenMode, returning the token a
// Backend call should use, or an Unauthorized error.
func (s *Store) ResolveToken(token string) (string, error) {
	switch s.tokenMode {
	case Anonymous:
		return token, nil
	case AllowDefault:
		if token == "" {
			return s.defToken, nil
		}
		return token, nil
	default: // RequireToken
		if token == "" {
			return "", NewError("ResolveToken", KindUnauthorized, nil)
		}
		return token, nil
	}
}

// Close stops the background loops and joins them deterministically, then
// issues a best-effort final Flush, swallowing its error per §7.
func (s *Store) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
	})
	if err := s.backend.Flush(ctx, s.defToken); err != nil {
		s.logger.Warn("final flush on close failed: " + err.Error())
	}
	return nil
}

func (s *Store) runFlusher() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.backend.Flush(context.Background(), s.defToken); err != nil {
				metrics.CommitFailures.Inc()
				s.logger.Warn("periodic flush failed: " + err.Error())
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) runMonitor() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sz, err := s.backend.Size(context.Background(), s.defToken)
			if err != nil {
				s.logger.Warn("size monitor failed: " + err.Error())
				continue
			}
			metrics.DatastoreSize.Set(float64(sz))
		case <-s.stopCh:
			return
		}
	}
}
