// Package sweep implements the periodic inbox scan that harvests PDF
// attachments from linked mail accounts and delivers them to storage.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/atulm/billdrop/internal/config"
	"github.com/atulm/billdrop/internal/database"
	"github.com/atulm/billdrop/internal/healthcheck"
	"github.com/atulm/billdrop/internal/pdf"
	"github.com/atulm/billdrop/internal/provider"
	"github.com/atulm/billdrop/pkg/models"
)

// Deps dependencies for creating a sweeper
type Deps struct {
	Config    *config.Config
	DB        *database.DB
	Providers provider.Factory
	Decryptor pdf.Decryptor
	Health    *healthcheck.Pinger
	Logger    *slog.Logger
}

// Sweeper runs the periodic scan across all mail accounts with rules.
type Sweeper struct {
	cfg       *config.Config
	db        *database.DB
	providers provider.Factory
	decryptor pdf.Decryptor
	health    *healthcheck.Pinger
	logger    *slog.Logger

	trigger chan struct{}
	locks   accountLocks
}

// New creates a sweeper
func New(deps Deps) *Sweeper {
	return &Sweeper{
		cfg:       deps.Config,
		db:        deps.DB,
		providers: deps.Providers,
		decryptor: deps.Decryptor,
		health:    deps.Health,
		logger:    deps.Logger.With("component", "sweeper"),
		trigger:   make(chan struct{}, 1),
		locks:     accountLocks{held: make(map[string]bool)},
	}
}

// Run blocks, sweeping on the configured interval and on manual triggers,
// until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("sweep scheduler started", "interval", s.cfg.SweepInterval)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweep scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		case <-s.trigger:
			s.Sweep(ctx)
		}
	}
}

// TriggerNow requests a sweep outside the schedule. Fire and forget: it
// never blocks, and a trigger arriving while one is already pending
// coalesces with it.
func (s *Sweeper) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Sweep runs one full scan: discover mail accounts with rules, fan out one
// unit of work per account, wait for all of them, release every provider
// session opened along the way. A failing unit never stops the others.
func (s *Sweeper) Sweep(ctx context.Context) {
	started := time.Now()
	s.logger.Info("sweep started")
	s.health.Start(ctx)

	accounts, err := s.db.AccountsWithRules(ctx)
	if err != nil {
		s.logger.Error("failed to discover accounts with rules", "error", err)
		return
	}

	// Storage clients are cached for this sweep only and closed with it.
	cache := newClientCache(s.providers)
	defer cache.Close()

	var wg sync.WaitGroup
	for _, unit := range accounts {
		wg.Add(1)
		go func(unit models.AccountRuleCount) {
			defer wg.Done()

			if !s.locks.acquire(unit.AccountID) {
				s.logger.Info("account sweep already running, skipping", "account_id", unit.AccountID)
				return
			}
			defer s.locks.release(unit.AccountID)

			s.sweepAccount(ctx, unit, cache)
		}(unit)
	}
	wg.Wait()

	s.health.Done(ctx)
	s.logger.Info("sweep finished", "accounts", len(accounts), "duration", time.Since(started))
}

// accountLocks is an advisory per-account lock set. A manually triggered
// sweep overlapping the scheduled one must not process the same account
// twice concurrently.
type accountLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *accountLocks) acquire(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[id] {
		return false
	}
	l.held[id] = true
	return true
}

func (l *accountLocks) release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, id)
}

// clientCache holds the storage clients opened during one sweep, one per
// destination account.
type clientCache struct {
	mu        sync.Mutex
	providers provider.Factory
	writers   map[string]provider.StorageWriter
}

func newClientCache(providers provider.Factory) *clientCache {
	return &clientCache{
		providers: providers,
		writers:   make(map[string]provider.StorageWriter),
	}
}

func (c *clientCache) storageWriter(ctx context.Context, accountID string) (provider.StorageWriter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.writers[accountID]; ok {
		return w, nil
	}
	w, err := c.providers.StorageWriterByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	c.writers[accountID] = w
	return w, nil
}

// Close releases all cached clients
func (c *clientCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, w := range c.writers {
		_ = w.Close()
		delete(c.writers, id)
	}
}
