// Package service assembles the bot runtime: the document store, the rank
// engine, platform adapters and the metrics endpoint.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/communityrank/internal/adapters/discord"
	"github.com/okian/communityrank/internal/adapters/http/api"
	"github.com/okian/communityrank/internal/adapters/reddit"
	"github.com/okian/communityrank/internal/config"
	"github.com/okian/communityrank/internal/rank"
	"github.com/okian/communityrank/internal/store"
	"github.com/okian/communityrank/pkg/logger"
	"github.com/okian/communityrank/pkg/metrics"
)

// rankDatabase is the named database holding all rank tables.
const rankDatabase = "rank"

// metricsShutdownTimeout bounds how long Stop waits for the metrics server.
const metricsShutdownTimeout = 5 * time.Second

// Service wires the persistence and rank core to its inbound and outbound
// adapters and runs the background sync loop.
type Service struct {
	cfg *config.Config

	rankStore *store.Store
	records   *rank.RecordStore
	engine    *rank.Engine

	discord    *discord.Handler
	metricsSrv *http.Server

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	log logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// New builds the service graph from configuration: store, record layer,
// engine with platform resolvers, and the Discord gateway handler when a
// token is configured.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("service")
	}

	storeOpts := []store.Option{
		store.WithLegacyDir(cfg.DataDir),
		store.WithLogger(s.log),
	}
	if cfg.UseDataRepo && cfg.DataRepoURL != "" {
		storeOpts = append(storeOpts, store.WithRemote(cfg.DataRepoURL, cfg.DataRepoBranch, cfg.DataRepoDir))
	}

	rankStore, err := store.Open(ctx, rankDatabase, cfg.DataDir, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("open rank store: %w", err)
	}
	s.rankStore = rankStore

	records, err := rank.NewRecordStore(ctx, rankStore, s.log)
	if err != nil {
		return nil, fmt.Errorf("build record store: %w", err)
	}
	s.records = records

	engineOpts := []rank.Option{
		rank.WithXPRange(cfg.XPMin, cfg.XPMax),
		rank.WithBulkXPRange(cfg.BulkXPMin, cfg.BulkXPMax),
		rank.WithCooldownWindow(time.Duration(cfg.CooldownSeconds) * time.Second),
		rank.WithBatchSize(cfg.MigrationBatchSize),
		rank.WithResolver(rank.PlatformDiscord, discord.GuildResolver{}),
		rank.WithLogger(s.log.Named("rank")),
	}
	if subredditID := cfg.SubredditID; subredditID != "" {
		engineOpts = append(engineOpts,
			rank.WithResolver(rank.PlatformReddit, reddit.NewSubredditResolver(subredditID)))
	}
	s.engine = rank.NewEngine(records, engineOpts...)

	if cfg.DiscordToken != "" {
		handler, err := discord.NewHandler(cfg.DiscordToken, s.engine,
			discord.WithLogger(s.log.Named("discord")))
		if err != nil {
			return nil, fmt.Errorf("build discord handler: %w", err)
		}
		s.discord = handler
	}

	return s, nil
}

// Engine exposes the rank engine, for CLI commands that drive imports.
func (s *Service) Engine() *rank.Engine {
	return s.engine
}

// Store exposes the rank document store.
func (s *Service) Store() *store.Store {
	return s.rankStore
}

// Start connects the Discord gateway, serves the metrics endpoint and
// launches the periodic durable sync.
func (s *Service) Start(ctx context.Context) error {
	if s.started {
		return nil
	}

	if s.discord != nil {
		if err := s.discord.Open(ctx); err != nil {
			return err
		}
	}

	if s.cfg.MetricsAddr != "" {
		s.startMetricsServer(ctx)
	}
	s.startSyncLoop(ctx)

	s.started = true
	s.log.Info(ctx, "service started",
		logger.Bool("discord", s.discord != nil),
		logger.Bool("replication", s.cfg.UseDataRepo),
	)
	return nil
}

// Stop disconnects adapters, flushes the store one last time and shuts the
// metrics endpoint down.
func (s *Service) Stop(ctx context.Context) error {
	if !s.started {
		return nil
	}
	close(s.stopCh)
	s.wg.Wait()

	var errs []error
	if s.discord != nil {
		if err := s.discord.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.rankStore.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := s.metricsSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}

	s.started = false
	s.log.Info(ctx, "service stopped")
	return errors.Join(errs...)
}

func (s *Service) startMetricsServer(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	api.NewServer(s.engine).Register(mux)

	s.metricsSrv = &http.Server{
		Addr:              s.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info(ctx, "metrics endpoint listening", logger.String("addr", s.cfg.MetricsAddr))
		if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(ctx, "metrics endpoint failed", logger.Error(err))
		}
	}()
}

// startSyncLoop periodically flushes and replicates the store so changes
// made while replication was suspended, or writes that failed to push,
// eventually reach the remote.
func (s *Service) startSyncLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.SyncIntervalSeconds) * time.Second
	if interval <= 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				if err := s.rankStore.Sync(ctx); err != nil {
					s.log.Error(ctx, "periodic sync failed", logger.Error(err))
				}
			}
		}
	}()
}
