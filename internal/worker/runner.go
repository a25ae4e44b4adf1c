// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package worker runs named periodic tasks until the context is cancelled.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/ironcore-dev/opennaas-am/internal/onserr"
)

// Task is one unit of periodic work. Errors are logged, not fatal.
type Task func(ctx context.Context) error

type task struct {
	name     string
	interval time.Duration
	fn       Task
}

// Runner drives a set of periodic tasks, one goroutine each.
type Runner struct {
	tasks []task
	log   logr.Logger
}

func NewRunner(log logr.Logger) *Runner {
	return &Runner{log: log}
}

// Add registers a task to run every interval. Must be called before Run.
func (r *Runner) Add(name string, interval time.Duration, fn Task) {
	r.tasks = append(r.tasks, task{name: name, interval: interval, fn: fn})
}

// Run starts all registered tasks and blocks until ctx is cancelled and every
// task goroutine has stopped. Each task runs once immediately, then on its
// interval.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.tasks) == 0 {
		return onserr.New("no tasks registered")
	}
	var wg sync.WaitGroup
	for _, t := range r.tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(ctx, t)
		}()
	}
	wg.Wait()
	return nil
}

func (r *Runner) loop(ctx context.Context, t task) {
	log := r.log.WithValues("task", t.name)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	r.runOnce(ctx, log, t)
	for {
		select {
		case <-ctx.Done():
			log.V(1).Info("stopping task")
			return
		case <-ticker.C:
			r.runOnce(ctx, log, t)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, log logr.Logger, t task) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error(onserr.Errorf("task panicked: %v", rec), "task run failed")
		}
	}()
	if err := t.fn(ctx); err != nil {
		log.Error(err, "task run failed")
	}
}
