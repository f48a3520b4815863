package internal

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/shongo-go/connector/src/consts"
	"github.com/shongo-go/connector/src/pkg/sentry"
)

// Pool 有界的后台任务池，同一个 key 同时只能有一个任务
// 用于录制移动，避免大文件传输阻塞轮询循环
type Pool struct {
	sem *semaphore.Weighted

	mu       sync.Mutex
	inFlight map[string]struct{}
	closed   bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = consts.DefaultRecordingMoveWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:      semaphore.NewWeighted(int64(size)),
		inFlight: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit 提交任务，key 已在执行或池已关闭时返回 false
// 已开始的任务不会被 Close 打断
func (p *Pool) Submit(key string, fn func(ctx context.Context)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if _, ok := p.inFlight[key]; ok {
		return false
	}
	p.inFlight[key] = struct{}{}
	p.wg.Add(1)
	sentry.Go(func() {
		defer p.wg.Done()
		defer p.remove(key)
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		fn(context.WithoutCancel(p.ctx))
	})
	return true
}

// InFlight key 是否正在处理或排队
func (p *Pool) InFlight(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inFlight[key]
	return ok
}

// Keys 正在处理或排队的 key
func (p *Pool) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.inFlight))
	for key := range p.inFlight {
		keys = append(keys, key)
	}
	return keys
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

func (p *Pool) remove(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, key)
}

// Close 丢弃排队中的任务并等待执行中的任务完成
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}
