package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/yola1107/blackjack/library/xgo"
)

/*
	串行任务队列 serial job loop
	一个 Loop 对应一个 goroutine, 任务按提交顺序(FIFO)执行
*/

var (
	ErrLoopStopped = errors.New("task: loop stopped")
	ErrLoopBusy    = errors.New("task: loop queue full")
)

const defaultJobsCnt = 256

type Loop struct {
	name string
	jobs chan func()
	quit chan struct{}
	done chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewLoop 创建一个Loop队列, jobsCnt为队列最大缓冲任务数量
func NewLoop(name string, jobsCnt int) *Loop {
	if jobsCnt <= 0 {
		jobsCnt = defaultJobsCnt
	}
	return &Loop{
		name: name,
		jobs: make(chan func(), jobsCnt),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (lp *Loop) Start() {
	lp.startOnce.Do(func() {
		log.Debugf("loop(%s) start ..", lp.name)
		go lp.run()
	})
}

func (lp *Loop) run() {
	defer close(lp.done)
	for {
		select {
		case <-lp.quit:
			log.Debugf("loop(%s) routine stop. pending=%d", lp.name, len(lp.jobs))
			return
		case job := <-lp.jobs:
			lp.exec(job)
		}
	}
}

func (lp *Loop) exec(job func()) {
	defer xgo.RecoverFromError(func(e any) {
		log.Errorf("loop(%s) job panic: %v", lp.name, e)
	})
	job()
}

// Stop 通知循环退出, 已入队但未执行的任务被丢弃. 可重复调用.
func (lp *Loop) Stop() {
	lp.stopOnce.Do(func() { close(lp.quit) })
}

// Done is closed once the loop goroutine has exited.
func (lp *Loop) Done() <-chan struct{} { return lp.done }

func (lp *Loop) Jobs() int {
	return len(lp.jobs)
}

// Post enqueues job without waiting for it to run.
func (lp *Loop) Post(job func()) error {
	select {
	case <-lp.quit:
		return ErrLoopStopped
	default:
	}
	select {
	case lp.jobs <- job:
		return nil
	case <-lp.quit:
		return ErrLoopStopped
	default:
		return ErrLoopBusy
	}
}

// PostAndWait runs job on the loop and returns its error. A panic inside
// job is reported as an error. If the loop stops before the job completes
// ErrLoopStopped is returned.
//
// A job is either run and waited for, or skipped: once ctx is done before
// the job starts, it never runs and ctx.Err() is returned. A job that has
// already started is waited for even after ctx is done.
func (lp *Loop) PostAndWait(ctx context.Context, job func() error) error {
	const (
		pending int32 = iota
		running
		abandoned
	)
	var state atomic.Int32
	res := make(chan error, 1)
	wrapped := func() {
		if !state.CompareAndSwap(pending, running) {
			return
		}
		defer xgo.RecoverFromError(func(e any) {
			res <- fmt.Errorf("task: job panic: %v", e)
		})
		res <- job()
	}

	select {
	case lp.jobs <- wrapped:
	case <-lp.quit:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-res:
		return err
	case <-lp.done:
		return lp.result(res)
	case <-ctx.Done():
		if state.CompareAndSwap(pending, abandoned) {
			return ctx.Err()
		}
	}

	// 已开始执行, 等待结果
	select {
	case err := <-res:
		return err
	case <-lp.done:
		return lp.result(res)
	}
}

func (lp *Loop) result(res <-chan error) error {
	select {
	case err := <-res:
		return err
	default:
		return ErrLoopStopped
	}
}
