package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
)

// RunStarter kicks off an ingestion run for one source.
type RunStarter interface {
	StartRun(ctx context.Context, sourceID, category string) (*models.IngestionRun, error)
}

// Scheduler fires ingestion runs on each enabled source's cron
// schedule. Overlapping fires for the same source are skipped rather
// than queued.
type Scheduler struct {
	starter RunStarter
	runs    interfaces.RunStorage
	cron    *cron.Cron
	logger  arbor.ILogger

	mu      sync.Mutex
	running map[string]bool
}

func New(starter RunStarter, runs interfaces.RunStorage) *Scheduler {
	return &Scheduler{
		starter: starter,
		runs:    runs,
		cron:    cron.New(),
		logger:  common.GetLogger(),
		running: make(map[string]bool),
	}
}

// Register adds cron entries for every enabled definition that carries
// a schedule. Sources without one are manual-trigger only.
func (s *Scheduler) Register(definitions []models.SourceDefinition) error {
	for _, def := range definitions {
		if !def.Enabled || def.Schedule == "" {
			continue
		}
		def := def
		_, err := s.cron.AddFunc(def.Schedule, func() { s.fire(def) })
		if err != nil {
			return err
		}
		s.logger.Info().Str("source", def.ID).Str("schedule", def.Schedule).Msg("Scheduled source")
	}
	return nil
}

func (s *Scheduler) fire(def models.SourceDefinition) {
	s.mu.Lock()
	if s.running[def.ID] {
		s.mu.Unlock()
		s.logger.Warn().Str("source", def.ID).Msg("Previous run still in flight, skipping scheduled fire")
		return
	}
	s.running[def.ID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, def.ID)
		s.mu.Unlock()
	}()

	ctx := context.Background()
	if s.hasActiveRun(ctx, def.ID) {
		s.logger.Warn().Str("source", def.ID).Msg("Previous run not yet terminal, skipping scheduled fire")
		return
	}

	run, err := s.starter.StartRun(ctx, def.ID, def.Category)
	if err != nil {
		s.logger.Error().Err(err).Str("source", def.ID).Msg("Scheduled run failed to start")
		return
	}
	s.logger.Info().Str("source", def.ID).Str("run_id", run.RunID).Msg("Scheduled run started")
}

// hasActiveRun reports whether a recent run for the source is still
// queued or running.
func (s *Scheduler) hasActiveRun(ctx context.Context, sourceID string) bool {
	if s.runs == nil {
		return false
	}
	recent, err := s.runs.ListBySource(ctx, sourceID, 5)
	if err != nil {
		return false
	}
	for _, run := range recent {
		if run.Status == models.RunQueued || run.Status == models.RunRunning {
			return true
		}
	}
	return false
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for in-flight fires.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
