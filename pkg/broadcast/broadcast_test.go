// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package broadcast_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/wosledon/rtpserver/pkg/base"
	"github.com/wosledon/rtpserver/pkg/broadcast"
)

func TestBroadcasterOrder(t *testing.T) {
	b := broadcast.NewBroadcaster()
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberNum())

	for i := 0; i < 100; i++ {
		b.Publish([]byte{byte(i)})
	}
	assert.Equal(t, uint64(100), b.PublishCount())

	ctx := context.Background()
	for _, sub := range []*broadcast.Subscriber{sub1, sub2} {
		assert.Equal(t, 100, sub.Len())
		for i := 0; i < 100; i++ {
			chunk, err := sub.Read(ctx)
			assert.Equal(t, nil, err)
			assert.Equal(t, []byte{byte(i)}, chunk)
		}
		assert.Equal(t, uint64(100), sub.ReadCount())
	}
}

func TestSubscriberIndependentPace(t *testing.T) {
	b := broadcast.NewBroadcaster()
	fast := b.Subscribe()
	slow := b.Subscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	var got [][]byte
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			chunk, err := fast.Read(context.Background())
			if err != nil {
				return
			}
			got = append(got, chunk)
		}
	}()
	for i := 0; i < 50; i++ {
		b.Publish([]byte{byte(i)})
	}
	wg.Wait()
	assert.Equal(t, 50, len(got))
	assert.Equal(t, []byte{49}, got[49])

	// slow一直没有读，数据都还在
	assert.Equal(t, 50, slow.Len())
	chunk, ok := slow.TryRead()
	assert.Equal(t, true, ok)
	assert.Equal(t, []byte{0}, chunk)
}

func TestUnsubscribe(t *testing.T) {
	b := broadcast.NewBroadcaster()
	sub := b.Subscribe()
	b.Publish([]byte{1})
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberNum())
	assert.Equal(t, true, sub.IsClosed())

	// 关闭后不再接收新数据，残留数据依然可读
	b.Publish([]byte{2})
	chunk, err := sub.Read(context.Background())
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{1}, chunk)
	_, err = sub.Read(context.Background())
	assert.Equal(t, true, errors.Is(err, base.ErrSubscriberClosed))

	// 重复调用
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)
}

func TestReadUnblock(t *testing.T) {
	b := broadcast.NewBroadcaster()
	sub := b.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := sub.Read(ctx)
	assert.Equal(t, context.DeadlineExceeded, err)

	done := make(chan error, 1)
	go func() {
		_, err := sub.Read(context.Background())
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	b.Dispose()
	select {
	case err := <-done:
		assert.Equal(t, base.ErrSubscriberClosed, err)
	case <-time.After(time.Second):
		t.Fatal("read not unblocked by dispose")
	}
}

func TestConcurrentSubscribePublish(t *testing.T) {
	b := broadcast.NewBroadcaster()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sub := b.Subscribe()
				b.Unsubscribe(sub)
			}
		}()
	}
	for i := 0; i < 1000; i++ {
		b.Publish([]byte{byte(i)})
	}
	wg.Wait()
	assert.Equal(t, 0, b.SubscriberNum())
}
