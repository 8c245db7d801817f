package work

/*
	协程池 + 定时器
*/

const defaultPendingNum = 100

// IWorkStore bundles a goroutine pool with a timing wheel whose expired
// tasks run on that pool.
type IWorkStore interface {
	ITaskLoop
	Scheduler() Scheduler
}

type workStore struct {
	ITaskLoop
	timer Scheduler
}

func NewWorkStore(pendingNum ...int) IWorkStore {
	size := defaultPendingNum
	if len(pendingNum) > 0 && pendingNum[0] > 0 {
		size = pendingNum[0]
	}
	l := NewAntsLoop(size)
	return &workStore{
		ITaskLoop: l,
		timer:     NewWheelScheduler(WithExecutor(l)),
	}
}

func (w *workStore) Scheduler() Scheduler { return w.timer }

// Stop cancels every timer before releasing the pool.
func (w *workStore) Stop() {
	w.timer.Stop()
	w.ITaskLoop.Stop()
}
