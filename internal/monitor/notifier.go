package monitor

import (
	"sync"
	"sync/atomic"
	"time"
)

// Observer 接收回测事件，实现不得阻塞调用方。
type Observer interface {
	Notify(event Event)
}

// ObserverFunc 允许使用函数作为观察者。
type ObserverFunc func(event Event)

func (f ObserverFunc) Notify(event Event) {
	if f != nil {
		f(event)
	}
}

// Multi 将事件广播给多个观察者。
func Multi(observers ...Observer) Observer {
	list := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return ObserverFunc(func(event Event) {
		for _, o := range list {
			o.Notify(event)
		}
	})
}

// Notifier 通过带缓冲的通道把事件交给消费方，通道满时丢弃事件而不阻塞回测循环。
type Notifier struct {
	mu      sync.RWMutex
	ch      chan Event
	closed  bool
	dropped atomic.Int64
	runID   string
}

// NewNotifier 创建通知器。
func NewNotifier(runID string, buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	return &Notifier{ch: make(chan Event, buffer), runID: runID}
}

// Notify 非阻塞投递事件。
func (n *Notifier) Notify(event Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.dropped.Add(1)
		return
	}
	if event.RunID == "" {
		event.RunID = n.runID
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case n.ch <- event:
	default:
		n.dropped.Add(1)
	}
}

// Events 返回事件通道，Close 后通道关闭。
func (n *Notifier) Events() <-chan Event {
	return n.ch
}

// Dropped 返回因通道已满或已关闭而丢弃的事件数。
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Close 关闭通道，重复调用安全。
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.ch)
}
