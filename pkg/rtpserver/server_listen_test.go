// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtpserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/naza/pkg/nazanet"
	"github.com/wosledon/rtpserver/pkg/broadcast"
)

var errFakeUdpConnection = errors.New("fake udp connection failed")

func TestListenWrapFailed(t *testing.T) {
	defer func() {
		newUdpConnection = nazanet.NewUdpConnection
	}()

	// 第n次创建UdpConnection时失败，已绑定的socket都要关闭
	for _, failAt := range []int{1, 2} {
		rtpC, _, rtcpC, _, err := nazanet.NewAvailUdpConnPool(40000, 50000).Acquire2()
		assert.Equal(t, nil, err)

		n := 0
		newUdpConnection = func(modOptions ...nazanet.ModUdpConnectionOption) (*nazanet.UdpConnection, error) {
			n++
			if n == failAt {
				return nil, errFakeUdpConnection
			}
			return nazanet.NewUdpConnection(modOptions...)
		}

		b := broadcast.NewBroadcaster()
		s := NewServer(b, func(option *ServerOption) {
			option.RtpConn = rtpC
			option.RtcpConn = rtcpC
		})
		err = s.RunLoop(context.Background())
		assert.Equal(t, true, errors.Is(err, errFakeUdpConnection))
		assert.Equal(t, StateCreated, s.GetState())
		assert.Equal(t, failAt, n)

		// 关闭后的socket设置deadline会失败
		assert.IsNotNil(t, rtpC.SetReadDeadline(time.Now()))
		assert.IsNotNil(t, rtcpC.SetReadDeadline(time.Now()))
		b.Dispose()
	}
}
