// Package scheduler runs the periodic background passes: plan reconciliation
// for the current week, weekly artifact refresh for recently active users,
// and interaction-log retention.
package scheduler

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/stridelab/stridecoach/internal/coach"
	"github.com/stridelab/stridecoach/internal/models"
)

const (
	// DefaultInterval is how often maintenance runs when not configured.
	DefaultInterval = 6 * time.Hour
	// DefaultRetention is how long interaction-log rows are kept.
	DefaultRetention = 90 * 24 * time.Hour
)

// Status holds the result of the last maintenance run.
type Status struct {
	LastRun            time.Time
	NextRun            time.Time
	UsersReconciled    int
	StatusesChanged    int
	ArtifactsRefreshed int
	InteractionsPruned int64
}

// Scheduler runs periodic maintenance tasks in the background.
type Scheduler struct {
	db        *sql.DB
	engine    *coach.Engine
	interval  time.Duration
	retention time.Duration

	stop chan struct{}
	done chan struct{}

	mu     sync.RWMutex
	status Status
}

// New creates a Scheduler. Zero interval or retention fall back to the
// defaults.
func New(db *sql.DB, engine *coach.Engine, interval, retention time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Scheduler{
		db:        db,
		engine:    engine,
		interval:  interval,
		retention: retention,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins running maintenance tasks. It runs an initial pass
// immediately, then repeats at the configured interval. Call Stop to shut
// down gracefully.
func (s *Scheduler) Start() {
	go s.run()
	log.Printf("scheduler: started, interval %s", s.interval)
}

// Stop signals the scheduler to shut down and waits for it to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// Status returns the result of the last maintenance run.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Scheduler) run() {
	defer close(s.done)

	s.runMaintenance()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runMaintenance()
		case <-s.stop:
			return
		}
	}
}

// runMaintenance executes all periodic passes.
func (s *Scheduler) runMaintenance() {
	log.Println("scheduler: running maintenance")

	users, changed := s.reconcileCurrentWeek()
	refreshed := s.refreshWeeklyArtifacts()
	pruned := s.pruneInteractions()

	now := time.Now()
	s.mu.Lock()
	s.status = Status{
		LastRun:            now,
		NextRun:            now.Add(s.interval),
		UsersReconciled:    users,
		StatusesChanged:    changed,
		ArtifactsRefreshed: refreshed,
		InteractionsPruned: pruned,
	}
	s.mu.Unlock()

	log.Println("scheduler: maintenance complete")
}

// reconcileCurrentWeek re-derives planned-workout statuses for every user
// holding rows in the current calendar week.
func (s *Scheduler) reconcileCurrentWeek() (users, changed int) {
	weekStart, weekEnd := currentWeek(time.Now())
	ids, err := models.ListUserIDsWithPlannedWeek(s.db, weekStart, weekEnd)
	if err != nil {
		log.Printf("scheduler: list planned users: %v", err)
		return 0, 0
	}

	for _, id := range ids {
		n, err := s.engine.ReconcileWeek(id, weekStart, weekEnd)
		if err != nil {
			log.Printf("scheduler: reconcile user %d: %v", id, err)
			continue
		}
		users++
		changed += n
	}
	if changed > 0 {
		log.Printf("scheduler: reconciled %d user(s), %d status change(s)", users, changed)
	}
	return users, changed
}

// refreshWeeklyArtifacts regenerates the cache-gated weekly summary and
// encouragement for users active in the last two days. An unchanged week is a
// pair of cache reads, so this pass stays cheap.
func (s *Scheduler) refreshWeeklyArtifacts() int {
	ids, err := models.ListUserIDsActiveSince(s.db, time.Now().AddDate(0, 0, -2))
	if err != nil {
		log.Printf("scheduler: list active users: %v", err)
		return 0
	}

	refreshed := 0
	for _, id := range ids {
		if _, err := s.engine.RefreshWeeklyArtifacts(context.Background(), id); err != nil {
			log.Printf("scheduler: refresh artifacts for user %d: %v", id, err)
			continue
		}
		refreshed++
	}
	return refreshed
}

// pruneInteractions removes interaction-log rows past the retention window.
func (s *Scheduler) pruneInteractions() int64 {
	cutoff := time.Now().Add(-s.retention)
	deleted, err := models.DeleteInteractionsBefore(s.db, cutoff)
	if err != nil {
		log.Printf("scheduler: prune interactions: %v", err)
		return 0
	}
	if deleted > 0 {
		log.Printf("scheduler: pruned %d interaction(s)", deleted)
	}
	return deleted
}

// currentWeek returns the Monday and Sunday of the week containing t.
func currentWeek(t time.Time) (string, string) {
	offset := (int(t.Weekday()) + 6) % 7
	start := t.AddDate(0, 0, -offset)
	return start.Format("2006-01-02"), start.AddDate(0, 0, 6).Format("2006-01-02")
}
