package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/whesley264-oss/Hub-IMG/internal/repository"
)

// Janitor prunes expired session rows in the background.
// Login prunes too, but a quiet server would otherwise keep dead rows forever.
type Janitor struct {
	sessions repository.SessionRepository
	interval time.Duration
	logger   *slog.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewJanitor creates a Janitor that sweeps every interval.
func NewJanitor(sessions repository.SessionRepository, interval time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		sessions: sessions,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Calling it more than once has no effect.
func (j *Janitor) Start() {
	j.startOnce.Do(func() {
		j.logger.Info("starting session janitor", slog.Duration("interval", j.interval))
		j.wg.Add(1)
		go j.loop()
	})
}

// Stop ends the sweep loop and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
	})
	j.wg.Wait()
}

func (j *Janitor) loop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep deletes every session that has expired by now.
func (j *Janitor) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := j.sessions.DeleteExpiredSessions(ctx, time.Now())
	if err != nil {
		j.logger.Error("session sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		j.logger.Info("swept expired sessions", slog.Int64("count", n))
	}
}
