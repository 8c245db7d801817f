package work

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/panjf2000/ants/v2"

	"github.com/yola1107/blackjack/library/xgo"
)

// LoopStatus 当前池状态
type LoopStatus struct {
	Capacity int // 池最大容量
	Running  int // 当前运行中协程数
	Free     int // 空闲协程数
}

// ITaskLoop 协程池管理接口
type ITaskLoop interface {
	Start() error
	Stop()
	Status() LoopStatus
	Post(job func())
	RunAll(ctx context.Context, jobs ...func()) int
}

type antsLoop struct {
	mu          sync.RWMutex
	pool        *ants.Pool
	size        int
	fallback    func(context.Context, func())
	poolOptions []ants.Option
}

// NewAntsLoop 创建协程池实例
func NewAntsLoop(size int) ITaskLoop {
	l := &antsLoop{
		size: size,
		fallback: func(ctx context.Context, fn func()) {
			go safeRun(ctx, fn)
		},
		poolOptions: []ants.Option{
			ants.WithExpiryDuration(60 * time.Second),
		},
	}
	return l
}

func (l *antsLoop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool != nil {
		log.Warnf("antsLoop already started.")
		return nil
	}

	pool, err := ants.NewPool(l.size, l.poolOptions...)
	if err != nil {
		return fmt.Errorf("pool init failed: %w", err)
	}

	l.pool = pool
	log.Infof("antsLoop start... [size:%d]", l.size)
	return nil
}

func (l *antsLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool != nil {
		p := l.pool
		l.pool = nil
		log.Infof("antsLoop stopping [running:%d]", p.Running())
		p.Release()
	}
}

func (l *antsLoop) Status() LoopStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.pool == nil {
		return LoopStatus{}
	}
	capacity, running := l.pool.Cap(), l.pool.Running()
	return LoopStatus{
		Capacity: capacity,
		Running:  running,
		Free:     max(capacity-running, 0),
	}
}

// Post 提交任务, 不等待结果
func (l *antsLoop) Post(job func()) {
	l.submit(context.Background(), job)
}

// RunAll 并发执行全部 jobs 并等待结束, 返回实际执行的数量.
// ctx 取消后尚未开始的 job 会被跳过.
func (l *antsLoop) RunAll(ctx context.Context, jobs ...func()) int {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ran int
	)
	wg.Add(len(jobs))
	for _, job := range jobs {
		job := job
		l.submit(ctx, func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			defer xgo.RecoverFromError(nil)
			mu.Lock()
			ran++
			mu.Unlock()
			job()
		})
	}
	wg.Wait()
	return ran
}

func (l *antsLoop) submit(ctx context.Context, fn func()) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.pool == nil || l.pool.IsClosed() {
		l.triggerFallback(ctx, fn, "loop not started or loop is closed.")
		return
	}
	if err := l.pool.Submit(func() { safeRun(ctx, fn) }); err != nil {
		l.triggerFallback(ctx, fn, err.Error())
	}
}

func (l *antsLoop) triggerFallback(ctx context.Context, fn func(), reason string) {
	log.Warnf("antsLoop fallback. reason=%s", reason)
	l.fallback(ctx, fn)
}

func safeRun(_ context.Context, fn func()) {
	defer xgo.RecoverFromError(nil)
	fn()
}
