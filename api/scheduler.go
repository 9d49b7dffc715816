/*
scheduler.go - Background triggers for the engine passes

PURPOSE:
  Drives the reconciler and the recurring generator on fixed intervals.
  The engine performs no background threading of its own; this is host
  wiring around it, with a Start/Stop lifecycle for graceful shutdown.

DESIGN:
  - One goroutine per enabled job
  - A zero interval disables the job
  - Failures are logged and the next tick tries again; sync failures
    are reported without claiming data loss, recurring-tick failures
    are unattended and stay in the logs
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/bookkeeper/recon"
)

// Scheduler periodically runs reconciliation and recurring generation.
type Scheduler struct {
	Reconciler   *recon.Reconciler
	Generator    *recon.Generator
	SyncInterval time.Duration
	TickInterval time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
	mu   sync.Mutex
}

func NewScheduler(reconciler *recon.Reconciler, generator *recon.Generator, syncInterval, tickInterval time.Duration) *Scheduler {
	return &Scheduler{
		Reconciler:   reconciler,
		Generator:    generator,
		SyncInterval: syncInterval,
		TickInterval: tickInterval,
		stop:         make(chan struct{}),
	}
}

// Start launches the enabled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SyncInterval > 0 {
		s.wg.Add(1)
		go s.loop("sync", s.SyncInterval, func(ctx context.Context) {
			if result, err := s.Reconciler.Sync(ctx); err != nil {
				log.Printf("[Scheduler] could not refresh invoices: %v", err)
			} else if result.Created+result.Updated+result.Deleted > 0 {
				log.Printf("[Scheduler] sync: %d processed, %d created, %d updated, %d deleted",
					result.Processed, result.Created, result.Updated, result.Deleted)
			}
		})
		log.Printf("[Scheduler] sync every %v", s.SyncInterval)
	}

	if s.TickInterval > 0 {
		s.wg.Add(1)
		go s.loop("recurring", s.TickInterval, func(ctx context.Context) {
			if result, err := s.Generator.Tick(ctx); err != nil {
				log.Printf("[Scheduler] recurring tick failed: %v", err)
			} else if result.Generated > 0 {
				log.Printf("[Scheduler] recurring: %d generated, %d skipped", result.Generated, result.Skipped)
			}
		})
		log.Printf("[Scheduler] recurring tick every %v", s.TickInterval)
	}
}

// Stop signals the jobs and waits for them to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()
	log.Println("[Scheduler] stopped")
}

func (s *Scheduler) loop(name string, interval time.Duration, run func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			run(context.Background())
		case <-s.stop:
			log.Printf("[Scheduler] %s job stopping", name)
			return
		}
	}
}
