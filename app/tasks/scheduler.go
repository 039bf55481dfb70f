package tasks

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/lysyi3m/yt-monitor/app/database"
	"github.com/lysyi3m/yt-monitor/app/output"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Deps struct {
	Sources    SourceProvider
	Fetcher    FeedFetcher
	Extractor  Extractor
	Generator  SummaryGenerator
	Publisher  output.Publisher
	SourceRepo database.SourceRepository
	ItemRepo   database.ItemRepository
}

type Options struct {
	PollInterval    time.Duration
	MaxVideoAgeDays int
	SourcePause     time.Duration
	BackfillEnabled bool
	BackfillDepth   int
	BackfillDelay   time.Duration
}

// Scheduler runs the monitor loop on a single worker: an optional backfill
// at startup, then poll cycles separated by the poll interval.
type Scheduler struct {
	deps   Deps
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(deps Deps, opts Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		deps:   deps,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if s.opts.BackfillEnabled {
			s.runBackfill()
		}

		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-timer.C:
				s.runCycle()
				timer.Reset(s.opts.PollInterval)
				slog.Debug("Next poll scheduled", "in", s.opts.PollInterval)
			}
		}
	}()
}

// Stop requests shutdown and waits for the current external call to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) runBackfill() {
	defer s.recoverCycle("backfill")

	s.executeTask(s.ctx, NewSyncSourcesTask(s.deps.Sources, s.deps.SourceRepo))
	s.executeTask(s.ctx, NewBackfillTask(s.deps.Sources, s.deps.Fetcher, s.deps.Extractor, s.deps.Generator,
		s.deps.Publisher, s.deps.ItemRepo, s.opts.BackfillDepth, s.opts.BackfillDelay))
}

func (s *Scheduler) runCycle() {
	defer s.recoverCycle("poll")

	s.executeTask(s.ctx, NewSyncSourcesTask(s.deps.Sources, s.deps.SourceRepo))

	poll := NewPollSourcesTask(s.deps.Sources, s.deps.Fetcher, s.deps.SourceRepo, s.deps.ItemRepo,
		s.opts.MaxVideoAgeDays, s.opts.SourcePause)
	if err := s.executeTask(s.ctx, poll); err != nil {
		return
	}

	if len(poll.Candidates) == 0 {
		slog.Debug("No new videos this cycle")
		return
	}

	processed := 0
	for _, candidate := range poll.Candidates {
		if s.ctx.Err() != nil {
			slog.Info("Shutdown requested, leaving remaining videos pending",
				"processed", processed, "remaining", len(poll.Candidates)-processed)
			return
		}

		task := NewProcessItemTask(candidate, s.deps.Extractor, s.deps.Generator, s.deps.Publisher, s.deps.ItemRepo)
		s.executeTask(context.WithoutCancel(s.ctx), task)
		processed++
	}
}

func (s *Scheduler) executeTask(ctx context.Context, task TaskInterface) error {
	task.Start()

	err := task.Execute(ctx)
	if err != nil {
		slog.Error("Task failed",
			"type", string(task.GetType()),
			"id", task.GetID(),
			"subject", task.GetSubject(),
			"duration", task.GetDuration(),
			"error", err)
	}
	return err
}

func (s *Scheduler) recoverCycle(kind string) {
	if r := recover(); r != nil {
		slog.Error("Cycle aborted by panic, continuing", "cycle", kind, "panic", r, "stack", string(debug.Stack()))
	}
}
