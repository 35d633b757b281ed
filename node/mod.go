// Package node implements the lifecycle supervisor: startup initialization
// of the block-state contract, and start/stop ordering for the block
// builder's tick loop, the pool's aging sweeper, and an optional metrics
// server. The supervisor receives its backend, builder and pool as
// constructor parameters and also publishes them through a
// reflection-based dependency injector, so they can be resolved by type.
package node

import (
	"context"
	"net/http"
	"reflect"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/pactum-chain/pactum"
	"github.com/pactum-chain/pactum/blockstate"
	"github.com/pactum-chain/pactum/builder"
	"github.com/pactum-chain/pactum/errs"
	"github.com/pactum-chain/pactum/pool"
	"github.com/pactum-chain/pactum/store"
	"github.com/pactum-chain/pactum/types"
)

// Injector is a dependency injection abstraction: it lets a startup stage
// publish a dependency once and have any later stage resolve it by type,
// without every stage needing a direct constructor parameter for it.
type Injector interface {
	// Resolve populates the input with the dependency if any compatible
	// one exists.
	Resolve(interface{}) error

	// Inject stores the dependency to be resolved later on.
	Inject(interface{})
}

// reflectInjector is a reflection-based Injector.
type reflectInjector struct {
	mapper map[reflect.Type]interface{}
}

// NewInjector returns an empty injector.
func NewInjector() Injector {
	return &reflectInjector{mapper: make(map[reflect.Type]interface{})}
}

func (inj *reflectInjector) Resolve(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr {
		return xerrors.New("expect a pointer")
	}

	if !rv.Elem().IsValid() {
		return xerrors.Errorf("reflect value '%v' is invalid", rv)
	}

	for typ, value := range inj.mapper {
		if typ.AssignableTo(rv.Elem().Type()) {
			rv.Elem().Set(reflect.ValueOf(value))
			return nil
		}
	}

	return xerrors.Errorf("couldn't find dependency for '%v'", rv.Elem().Type())
}

func (inj *reflectInjector) Inject(v interface{}) {
	inj.mapper[reflect.TypeOf(v)] = v
}

// Config bounds the supervisor's background workers.
type Config struct {
	// AgingSweepInterval is how often the pool's aging sweeper runs. Zero
	// defaults to one second.
	AgingSweepInterval time.Duration

	// MetricsAddr, if non-empty, serves Prometheus metrics at /metrics on
	// this address for the lifetime of the supervisor.
	MetricsAddr string
}

// Supervisor owns the node's background workers and their shutdown
// ordering.
type Supervisor struct {
	backend  store.Backend
	builder  *builder.Builder
	pool     *pool.Pool
	cfg      Config
	Injector Injector

	metrics *metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup

	httpServer *http.Server
}

// New creates a Supervisor over an already-constructed builder and pool.
func New(backend store.Backend, b *builder.Builder, p *pool.Pool, cfg Config) *Supervisor {
	inj := NewInjector()
	inj.Inject(backend)
	inj.Inject(b)
	inj.Inject(p)

	return &Supervisor{
		backend:  backend,
		builder:  b,
		pool:     p,
		cfg:      cfg,
		Injector: inj,
	}
}

// Start initializes the block-state contract if absent, then launches the
// builder's tick loop, the pool's aging sweeper, and (if configured) the
// metrics server.
func (s *Supervisor) Start(ctx context.Context) error {
	now := types.TimestampFromTime(time.Now())

	if err := blockstate.Initialize(ctx, s.backend, now); err != nil {
		return xerrors.Errorf("couldn't initialize block-state contract: %v", err)
	}

	if _, _, err := blockstate.ReadHead(ctx, s.backend); err != nil {
		return errs.NewConsistencyError("block-state contract missing after initialization")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.builder.Run(runCtx)
	}()

	sweepInterval := s.cfg.AgingSweepInterval
	if sweepInterval <= 0 {
		sweepInterval = time.Second
	}

	s.wg.Add(1)
	go s.runAgingSweeper(runCtx, sweepInterval)

	if s.cfg.MetricsAddr != "" {
		s.metrics = newMetrics()
		s.metrics.watch(s.builder)

		s.httpServer = s.metrics.server(s.cfg.MetricsAddr)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()

			if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				pactum.Logger.Err(err).Msg("metrics server stopped")
			}
		}()
	}

	return nil
}

func (s *Supervisor) runAgingSweeper(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			number, _, err := blockstate.ReadHead(ctx, s.backend)
			if err != nil {
				pactum.Logger.Err(err).Msg("aging sweep couldn't read block-state")
				continue
			}

			if err := s.pool.Sweep(ctx, number); err != nil {
				pactum.Logger.Err(err).Msg("aging sweep failed")
			}
		}
	}
}

// Stop signals cancellation to every worker, waits for the builder to
// finish (or discard) its in-flight tick, then returns. It never interrupts
// a commit in progress: Builder.Tick checks for context cancellation
// between candidates and between commit attempts, never during a
// CommitBlock call.
func (s *Supervisor) Stop() error {
	if s.cancel == nil {
		return nil
	}

	s.cancel()

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			pactum.Logger.Err(err).Msg("metrics server shutdown error")
		}
	}

	s.wg.Wait()

	return nil
}
