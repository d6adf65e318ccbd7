// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "sync"

// workerPool runs signal processing on a fixed number of goroutines.
// Submit blocks while every worker is busy, which backpressures the
// connection read loops instead of growing an unbounded task backlog.
type workerPool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

func newWorkerPool(workers int) *workerPool {
	pool := &workerPool{tasks: make(chan func())}
	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer pool.wg.Done()
			for task := range pool.tasks {
				task()
			}
		}()
	}
	return pool
}

// Submit hands a task to the pool and blocks until it has run.
// Waiting for completion keeps one caller's submissions strictly
// ordered; the pool size bounds concurrency across callers.
func (p *workerPool) Submit(task func()) {
	done := make(chan struct{})
	p.tasks <- func() {
		defer close(done)
		task()
	}
	<-done
}

// Close stops accepting tasks and waits for in-flight ones.
func (p *workerPool) Close() {
	close(p.tasks)
	p.wg.Wait()
}
