package quiz

import (
	"sync"
	"time"
)

type EventKind string

const (
	EventTick    EventKind = "tick"
	EventExpired EventKind = "expired"
)

type TimerEvent struct {
	Kind      EventKind `json:"kind"`
	Remaining int       `json:"remaining"`
}

type TimerListener func(TimerEvent)

type TimerOption func(*Timer)

// WithTickInterval 修改每次扣减一秒所对应的真实间隔，测试中用来加速倒计时
func WithTickInterval(d time.Duration) TimerOption {
	return func(t *Timer) {
		if d > 0 {
			t.interval = d
		}
	}
}

// Timer 单次作答的倒计时，从 duration*60 秒数到 0。
type Timer struct {
	mu        sync.Mutex
	total     int
	remaining int
	interval  time.Duration
	started   bool
	stopped   bool

	stopCh     chan struct{}
	stopOnce   sync.Once
	expireOnce sync.Once

	listeners map[int]TimerListener
	nextID    int
}

func NewTimer(minutes int, opts ...TimerOption) (*Timer, error) {
	if minutes <= 0 {
		return nil, ErrInvalidDuration
	}
	t := &Timer{
		total:     minutes * 60,
		remaining: minutes * 60,
		interval:  time.Second,
		stopCh:    make(chan struct{}),
		listeners: make(map[int]TimerListener),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Subscribe 注册事件监听，返回取消函数。监听函数在计时 goroutine 上串行调用。
func (t *Timer) Subscribe(l TimerListener) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = l
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// Start 开始计时，重复调用无效
func (t *Timer) Start() {
	t.mu.Lock()
	if t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	go t.run()
}

func (t *Timer) run() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			if !t.tick() {
				return
			}
		}
	}
}

// tick 扣减一秒并广播；计时结束后返回 false
func (t *Timer) tick() bool {
	t.mu.Lock()
	if t.stopped || t.remaining == 0 {
		t.mu.Unlock()
		return false
	}
	t.remaining--
	remaining := t.remaining
	listeners := t.snapshotListeners()
	t.mu.Unlock()

	emit(listeners, TimerEvent{Kind: EventTick, Remaining: remaining})

	if remaining == 0 {
		t.expireOnce.Do(func() {
			emit(listeners, TimerEvent{Kind: EventExpired, Remaining: 0})
		})
		t.Stop()
		return false
	}
	return true
}

// Stop 停止计时，幂等，不等待计时 goroutine 退出
func (t *Timer) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		t.mu.Unlock()
		close(t.stopCh)
	})
}

func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *Timer) Total() int {
	return t.total
}

func (t *Timer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *Timer) snapshotListeners() []TimerListener {
	out := make([]TimerListener, 0, len(t.listeners))
	for i := 0; i < t.nextID; i++ {
		if l, ok := t.listeners[i]; ok {
			out = append(out, l)
		}
	}
	return out
}

func emit(listeners []TimerListener, ev TimerEvent) {
	for _, l := range listeners {
		l(ev)
	}
}
