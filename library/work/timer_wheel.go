package work

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/RussellLuo/timingwheel"
	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultWheelTick  = 100 * time.Millisecond // 时间轮精度
	defaultWheelSize  = 64                     // 时间轮槽位数
	defaultStopWaitUp = 3 * time.Second
)

// everyFromStart keeps a fixed cadence anchored at the first fire time so
// slow ticks do not accumulate drift.
type everyFromStart struct {
	interval time.Duration
	last     atomic.Value // time.Time
}

func (p *everyFromStart) Next(t time.Time) time.Time {
	last, _ := p.last.Load().(time.Time)
	if last.IsZero() {
		last = t
	}
	next := last.Add(p.interval)
	for steps := 0; !next.After(t); steps++ {
		if steps > maxIntervalJumps {
			log.Warnf("[wheelScheduler] skipped too many steps: %d", steps)
			next = t.Add(p.interval)
			break
		}
		next = next.Add(p.interval)
	}
	p.last.Store(next)
	return next
}

type WheelOption func(*wheelScheduler)

func WithExecutor(exec IExecutor) WheelOption {
	return func(s *wheelScheduler) { s.executor = exec }
}

type wheelTask struct {
	timer     *timingwheel.Timer
	cancelled atomic.Bool
}

// wheelScheduler 基于时间轮的定时任务调度器
type wheelScheduler struct {
	tick      time.Duration
	wheelSize int64
	executor  IExecutor
	tw        *timingwheel.TimingWheel

	mu       sync.Mutex
	tasks    map[int64]*wheelTask
	nextID   atomic.Int64
	running  atomic.Int32
	shutdown atomic.Bool
	wg       sync.WaitGroup
	once     sync.Once
}

func NewWheelScheduler(opts ...WheelOption) Scheduler {
	s := &wheelScheduler{
		tick:      defaultWheelTick,
		wheelSize: defaultWheelSize,
		tasks:     make(map[int64]*wheelTask),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tw = timingwheel.NewTimingWheel(s.tick, s.wheelSize)
	s.tw.Start()
	return s
}

func (s *wheelScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *wheelScheduler) Running() int32 { return s.running.Load() }

func (s *wheelScheduler) Forever(interval time.Duration, f func()) int64 {
	return s.schedule(interval, f)
}

func (s *wheelScheduler) Cancel(taskID int64) {
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	delete(s.tasks, taskID)
	var timer *timingwheel.Timer
	if ok {
		timer = t.timer
	}
	s.mu.Unlock()
	if ok && t.cancelled.CompareAndSwap(false, true) && timer != nil {
		timer.Stop()
	}
}

func (s *wheelScheduler) CancelAll() {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.Cancel(id)
	}
}

// Stop 停止调度器, 最多等待 defaultStopWaitUp 让执行中的任务结束
func (s *wheelScheduler) Stop() {
	s.once.Do(func() {
		s.shutdown.Store(true)
		s.CancelAll()
		s.tw.Stop()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			log.Info("[wheelScheduler] stopped gracefully")
		case <-time.After(defaultStopWaitUp):
			log.Warnf("[wheelScheduler] stop timed out after %v", defaultStopWaitUp)
		}
	})
}

func (s *wheelScheduler) schedule(d time.Duration, f func()) int64 {
	if s.shutdown.Load() {
		log.Warn("[wheelScheduler] shut down; task rejected")
		return -1
	}

	id := s.nextID.Add(1)
	t := &wheelTask{}

	// 先登记再启动 timer, 避免到期回调先于登记执行
	s.mu.Lock()
	s.tasks[id] = t
	s.mu.Unlock()

	timer := s.tw.ScheduleFunc(&everyFromStart{interval: d}, func() { s.fire(t, f) })
	s.mu.Lock()
	t.timer = timer
	s.mu.Unlock()
	if t.cancelled.Load() {
		timer.Stop()
	}
	return id
}

func (s *wheelScheduler) fire(t *wheelTask, f func()) {
	if t.cancelled.Load() || s.shutdown.Load() {
		return
	}
	s.running.Add(1)
	s.wg.Add(1)
	executeAsync(s.executor, func() {
		defer func() {
			s.running.Add(-1)
			s.wg.Done()
		}()
		if !t.cancelled.Load() {
			f()
		}
	})
}
