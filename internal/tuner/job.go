package tuner

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job runs the tuner for every layer on a fixed interval, outside the
// request path.
type Job struct {
	tuner    *Tuner
	layers   []string
	interval time.Duration
	defaults Request
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewJob(t *Tuner, layers []string, interval time.Duration, defaults Request, logger *slog.Logger) *Job {
	return &Job{
		tuner:    t,
		layers:   layers,
		interval: interval,
		defaults: defaults,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (j *Job) Start(ctx context.Context) {
	j.wg.Add(1)
	go j.loop(ctx)
}

func (j *Job) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.wg.Wait()
}

func (j *Job) loop(ctx context.Context) {
	defer j.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *Job) runOnce(ctx context.Context) {
	for _, layer := range j.layers {
		req := j.defaults
		req.Layer = layer
		result, err := j.tuner.Tune(ctx, req)
		if err != nil {
			j.logger.Error("periodic tune failed", "layer", layer, "error", err)
			continue
		}
		if !result.Applied {
			j.logger.Debug("periodic tune no-op", "layer", layer, "rationale", result.Rationale)
		}
	}
}
