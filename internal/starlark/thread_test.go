package starlark

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestThreadPool_GetPut(t *testing.T) {
	pool := NewThreadPool(5)

	thread := pool.Get("test1", nil)
	require.NotNil(t, thread, "Get returned nil")
	assert.Equal(t, "test1", thread.Name, "thread.Name")

	pool.Put(thread)
	assert.Equal(t, 1, pool.Size(), "pool size after put")

	// reused
	thread2 := pool.Get("test2", nil)
	assert.Equal(t, 0, pool.Size(), "pool size after get")
	assert.Equal(t, "test2", thread2.Name, "thread.Name after reuse")
}

func TestThreadPool_Print(t *testing.T) {
	pool := NewThreadPool(1)
	var buf bytes.Buffer

	thread := pool.Get("print", &buf)
	_, err := starlark.ExecFileOptions(fileOptions, thread, "print.star", `print("hello", 1)`, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello 1\n", buf.String())

	// a reused thread must not keep writing to the old writer
	pool.Put(thread)
	thread = pool.Get("print", nil)
	_, err = starlark.ExecFileOptions(fileOptions, thread, "print.star", `print("lost")`, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello 1\n", buf.String())
}

func TestThreadPool_MaxSize(t *testing.T) {
	pool := NewThreadPool(2)

	threads := make([]*starlark.Thread, 3)
	for i := 0; i < 3; i++ {
		threads[i] = pool.Get("test", nil)
	}

	for _, thread := range threads {
		pool.Put(thread)
	}

	assert.Equal(t, 2, pool.Size(), "pool size should be max (2)")
}

func TestThreadPool_DefaultSize(t *testing.T) {
	pool := NewThreadPool(0)

	for i := 0; i < 5; i++ {
		pool.Put(pool.Get("test", nil))
	}

	assert.NotEqual(t, 0, pool.Size(), "pool size should not be 0 after puts")
}

func TestThreadPool_Concurrent(t *testing.T) {
	pool := NewThreadPool(10)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Put(pool.Get("concurrent", nil))
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, pool.Size(), 10, "pool size should not exceed max of 10")
}
