package work

import (
	"time"

	"github.com/yola1107/blackjack/library/xgo"
)

// Scheduler 定时任务调度器接口
type Scheduler interface {
	Len() int                                       // 当前注册任务数量
	Running() int32                                 // 当前正在执行的任务数量
	Forever(interval time.Duration, f func()) int64 // 注册周期任务
	Cancel(taskID int64)                            // 取消指定任务
	CancelAll()                                     // 取消所有任务
	Stop()                                          // 停止调度器
}

// IExecutor 任务执行器接口, 用于把到期任务交给协程池执行
type IExecutor interface {
	Post(job func())
}

const maxIntervalJumps = 10000

func executeAsync(executor IExecutor, f func()) {
	run := func() {
		defer xgo.RecoverFromError(nil)
		f()
	}
	if executor != nil {
		executor.Post(run)
	} else {
		go run()
	}
}
