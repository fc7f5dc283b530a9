// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package broadcast

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/wosledon/rtpserver/pkg/base"
)

// Subscriber 一个消费者的无界队列
//
// 写入方是Broadcaster，读取方是外部的发送协程，两者通过notifyCh唤醒
type Subscriber struct {
	uniqueKey string

	mu       sync.Mutex
	q        deque.Deque[[]byte]
	closed   bool
	notifyCh chan struct{}

	pushCount nazaatomic.Uint64
	readCount nazaatomic.Uint64
}

func newSubscriber() *Subscriber {
	return &Subscriber{
		uniqueKey: base.GenUkFlvSubscriber(),
		notifyCh:  make(chan struct{}, 1),
	}
}

func (s *Subscriber) UniqueKey() string {
	return s.uniqueKey
}

// Read 阻塞直到读取到一块数据
//
// 关闭后残留在队列中的数据依然可以读出，读完后返回 base.ErrSubscriberClosed
func (s *Subscriber) Read(ctx context.Context) ([]byte, error) {
	for {
		s.mu.Lock()
		if s.q.Len() > 0 {
			b := s.q.PopFront()
			s.mu.Unlock()
			s.readCount.Increment()
			return b, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return nil, base.ErrSubscriberClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.notifyCh:
		}
	}
}

// TryRead 非阻塞，队列为空时返回false
func (s *Subscriber) TryRead() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.q.Len() == 0 {
		return nil, false
	}
	s.readCount.Increment()
	return s.q.PopFront(), true
}

// Len 队列中尚未读取的数据块数量
func (s *Subscriber) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Len()
}

func (s *Subscriber) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// PushCount 写入过的数据块总数
func (s *Subscriber) PushCount() uint64 {
	return s.pushCount.Load()
}

// ReadCount 读取过的数据块总数
func (s *Subscriber) ReadCount() uint64 {
	return s.readCount.Load()
}

// @return 已关闭时返回false
func (s *Subscriber) push(b []byte) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.q.PushBack(b)
	s.mu.Unlock()
	s.pushCount.Increment()
	s.notify()
	return true
}

func (s *Subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.notify()
}

func (s *Subscriber) notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}
