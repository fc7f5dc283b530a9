// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package broadcast 一对多分发字节流，每个消费者拥有独立的无界队列
package broadcast

import (
	"sync"

	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/wosledon/rtpserver/pkg/base"
)

var Log = base.Log

type Broadcaster struct {
	uniqueKey string

	mu   sync.RWMutex
	subs map[string]*Subscriber

	publishCount nazaatomic.Uint64
	skipCount    nazaatomic.Uint64
}

func NewBroadcaster() *Broadcaster {
	b := &Broadcaster{
		uniqueKey: base.GenUkBroadcaster(),
		subs:      make(map[string]*Subscriber),
	}
	Log.Infof("[%s] lifecycle new broadcaster.", b.uniqueKey)
	return b
}

func (b *Broadcaster) UniqueKey() string {
	return b.uniqueKey
}

func (b *Broadcaster) Subscribe() *Subscriber {
	sub := newSubscriber()
	b.mu.Lock()
	b.subs[sub.UniqueKey()] = sub
	num := len(b.subs)
	b.mu.Unlock()
	Log.Infof("[%s] add subscriber. sub=%s, num=%d", b.uniqueKey, sub.UniqueKey(), num)
	return sub
}

// Unsubscribe 关闭并移除，重复调用无副作用
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	_, ok := b.subs[sub.UniqueKey()]
	delete(b.subs, sub.UniqueKey())
	num := len(b.subs)
	b.mu.Unlock()
	sub.close()
	if ok {
		Log.Infof("[%s] del subscriber. sub=%s, num=%d", b.uniqueKey, sub.UniqueKey(), num)
	}
}

// Publish 不阻塞，已关闭的消费者直接跳过
//
// 所有消费者共享同一块内存<chunk>，调用方在Publish之后不应再修改它
func (b *Broadcaster) Publish(chunk []byte) {
	b.publishCount.Increment()
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.push(chunk) {
			b.skipCount.Increment()
		}
	}
}

func (b *Broadcaster) SubscriberNum() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) PublishCount() uint64 {
	return b.publishCount.Load()
}

// Dispose 关闭所有消费者
func (b *Broadcaster) Dispose() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscriber)
	b.mu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
	Log.Infof("[%s] lifecycle dispose broadcaster. closed=%d", b.uniqueKey, len(subs))
}
