// Package pubsub 进程内泛型事件广播
package pubsub

import (
	"context"
	"sync"
)

// EventType 广播层事件类型
type EventType string

const (
	CreatedEvent EventType = "created"
	UpdatedEvent EventType = "updated"
	DeletedEvent EventType = "deleted"
)

// Event 订阅者收到的事件
type Event[T any] struct {
	Type    EventType
	Payload T
}

const defaultBufferSize = 64

// Broker 将事件广播给所有订阅者；订阅者消费过慢时丢弃事件而不阻塞发布方
type Broker[T any] struct {
	mu     sync.RWMutex
	subs   map[chan Event[T]]struct{}
	buffer int
	closed bool
	done   chan struct{}
}

// NewBroker 创建Broker
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer 指定每个订阅者的缓冲大小
func NewBrokerWithBuffer[T any](buffer int) *Broker[T] {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	return &Broker[T]{
		subs:   make(map[chan Event[T]]struct{}),
		buffer: buffer,
		done:   make(chan struct{}),
	}
}

// Subscribe 订阅事件，ctx取消或Broker关闭时通道被关闭
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event[T], b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}
		b.unsubscribe(ch)
	}()
	return ch
}

func (b *Broker[T]) unsubscribe(ch chan Event[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Publish 广播事件，返回是否有订阅者丢弃了该事件
func (b *Broker[T]) Publish(t EventType, payload T) (dropped bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	ev := Event[T]{Type: t, Payload: payload}
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			dropped = true
		}
	}
	return dropped
}

// SubscriberCount 当前订阅者数量
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close 关闭所有订阅通道，之后的Publish不再投递
func (b *Broker[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.done)
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
