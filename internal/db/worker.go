package db

import (
	"context"
	"database/sql"
	"errors"
)

// ErrWorkerClosed is returned by Do after Close.
var ErrWorkerClosed = errors.New("db worker closed")

// TxFn runs inside a write transaction. Returning an error rolls it back.
type TxFn func(ctx context.Context, tx *sql.Tx) error

type job struct {
	ctx    context.Context
	fn     TxFn
	result chan error
}

// Worker serializes every write through one goroutine so SQLite never
// sees two writers. Reads go straight to the *sql.DB.
type Worker struct {
	db     *sql.DB
	jobs   chan job
	done   chan struct{}
	closed chan struct{}
}

func NewWorker(db *sql.DB) *Worker {
	w := &Worker{
		db:     db,
		jobs:   make(chan job, 256),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go w.loop()
	return w
}

// Close drains queued jobs and stops the worker. It is safe to call more
// than once.
func (w *Worker) Close() {
	select {
	case <-w.closed:
	default:
		close(w.closed)
		close(w.jobs)
	}
	<-w.done
}

// Do runs fn in a transaction on the worker goroutine and waits for the
// result. If ctx ends first Do returns ctx.Err(); a job already dequeued
// still runs to completion.
func (w *Worker) Do(ctx context.Context, fn TxFn) (err error) {
	defer func() {
		// Sending on jobs after Close panics; report it as an error.
		if recover() != nil {
			err = ErrWorkerClosed
		}
	}()

	j := job{ctx: ctx, fn: fn, result: make(chan error, 1)}

	select {
	case <-w.closed:
		return ErrWorkerClosed
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer close(w.done)
	for j := range w.jobs {
		j.result <- w.run(j)
	}
}

func (w *Worker) run(j job) error {
	tx, err := w.db.BeginTx(j.ctx, nil)
	if err != nil {
		return err
	}
	if err := j.fn(j.ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
