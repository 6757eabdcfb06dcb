package starlark

import (
	"fmt"
	"io"
	"sync"

	"go.starlark.net/starlark"
)

// ThreadPool manages a pool of Starlark threads. Threads that were cancelled
// must not be returned, since cancellation is permanent.
type ThreadPool struct {
	mu      sync.Mutex
	threads []*starlark.Thread
	maxSize int
}

// NewThreadPool creates a new thread pool with the specified maximum size.
func NewThreadPool(maxSize int) *ThreadPool {
	if maxSize <= 0 {
		maxSize = 4
	}
	return &ThreadPool{
		threads: make([]*starlark.Thread, 0, maxSize),
		maxSize: maxSize,
	}
}

// Get retrieves a thread from the pool or creates a new one. print()
// output of the script goes to out, one line per call.
func (p *ThreadPool) Get(name string, out io.Writer) *starlark.Thread {
	p.mu.Lock()
	var thread *starlark.Thread
	if n := len(p.threads); n > 0 {
		thread = p.threads[n-1]
		p.threads = p.threads[:n-1]
	}
	p.mu.Unlock()

	if thread == nil {
		thread = &starlark.Thread{}
	}
	thread.Name = name
	thread.Print = func(_ *starlark.Thread, msg string) {
		if out != nil {
			_, _ = fmt.Fprintln(out, msg)
		}
	}
	return thread
}

// Put returns a thread to the pool for reuse.
// If the pool is full, the thread is discarded.
func (p *ThreadPool) Put(thread *starlark.Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) < p.maxSize {
		// Clear any state that might leak between uses
		thread.Name = ""
		thread.Print = nil
		thread.SetLocal(failureKey, nil)
		p.threads = append(p.threads, thread)
	}
}

// Size returns the current number of threads in the pool.
func (p *ThreadPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}
