// Package adapter is the thin external command surface spec §6 describes:
// session connect/disconnect, JSON-lines command dispatch into
// internal/exchange, and subscriber fan-out back over the connection. Spec
// §1 scopes network transport as a non-goal of the core; this package is
// the collaborator the core assumes exists, kept deliberately simpler than
// the teacher's binary wire format since framing itself is out of scope.
package adapter

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

// WorkerFunc processes one task; returning an error kills the owning tomb.
type WorkerFunc = func(t *tomb.Tomb, task any) error

// WorkerPool runs a fixed number of goroutines pulling from a shared task
// channel, adapted from the teacher's internal/worker.go WorkerPool —
// same shape (n workers, buffered task channel, tomb-supervised loop),
// unified here under one package instead of split across a broken
// internal/utils import the teacher's own internal/net/server.go never
// satisfied.
type WorkerPool struct {
	n     int
	tasks chan any
	work  WorkerFunc
}

// NewWorkerPool constructs a pool with size workers.
func NewWorkerPool(size int) WorkerPool {
	return WorkerPool{
		tasks: make(chan any, taskChanSize),
		n:     size,
	}
}

// AddTask enqueues task for the next free worker.
func (pool *WorkerPool) AddTask(task any) {
	pool.tasks <- task
}

// Setup keeps pool.n workers alive under t until t is dying.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunc) {
	pool.work = work
	log.Info().Int("workers", pool.n).Msg("starting worker pool")
	active := 0
	for {
		select {
		case <-t.Dying():
			return
		default:
			if active < pool.n {
				t.Go(func() error {
					err := pool.worker(t)
					active--
					return err
				})
				active++
			}
		}
	}
}

func (pool *WorkerPool) worker(t *tomb.Tomb) error {
	select {
	case <-t.Dying():
		return nil
	case task := <-pool.tasks:
		if err := pool.work(t, task); err != nil {
			log.Error().Err(err).Msg("worker exiting on error")
			return err
		}
	}
	return nil
}
