// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtpserver_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazanet"
	"github.com/wosledon/rtpserver/pkg/base"
	"github.com/wosledon/rtpserver/pkg/broadcast"
	"github.com/wosledon/rtpserver/pkg/httpflv"
	"github.com/wosledon/rtpserver/pkg/rtprtcp"
	"github.com/wosledon/rtpserver/pkg/rtpserver"
)

func dialUdp(t *testing.T, port int) *net.UDPConn {
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	assert.Equal(t, nil, err)
	return conn
}

func waitState(t *testing.T, s *rtpserver.Server, state rtpserver.ServerState) {
	for i := 0; i < 200; i++ {
		if s.GetState() == state {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("wait state timeout. expected=%s, actual=%s", state, s.GetState())
}

func TestServer(t *testing.T) {
	pool := nazanet.NewAvailUdpConnPool(20000, 30000)
	rtpC, _, rtcpC, _, err := pool.Acquire2()
	assert.Equal(t, nil, err)

	b := broadcast.NewBroadcaster()
	s := rtpserver.NewServer(b, func(option *rtpserver.ServerOption) {
		option.RtpConn = rtpC
		option.RtcpConn = rtcpC
		option.WorkerNum = 2
	})
	assert.Equal(t, rtpserver.StateCreated, s.GetState())

	sub := b.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.RunLoop(ctx)
	}()
	waitState(t, s, rtpserver.StateRunning)

	rtpSender := dialUdp(t, s.RtpPort())
	defer rtpSender.Close()
	var ssrc uint32 = 0x11223344
	for i, payload := range [][]byte{
		rtprtcp.PackAvcStapa([][]byte{spsNal, ppsNal}),
		idrNal,
	} {
		_, err = rtpSender.Write(rtprtcp.PackRtpPacket(makePacket(ssrc, uint16(100+i), 9000, payload)))
		assert.Equal(t, nil, err)
	}
	// 无法解析的包
	_, _ = rtpSender.Write([]byte{0x80, 0x60})

	readCtx, readCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer readCancel()
	initSeg, err := sub.Read(readCtx)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, httpflv.IsFlvHeader(initSeg))
	assert.Equal(t, initSeg, s.LatestInitSegment())
	chunk, err := sub.Read(readCtx)
	assert.Equal(t, nil, err)
	tag, err := httpflv.ParseTagHeader(chunk)
	assert.Equal(t, nil, err)
	assert.Equal(t, httpflv.TagTypeVideo, tag.Type)
	assert.Equal(t, uint8(httpflv.AvcKeyFrame), chunk[httpflv.TagHeaderSize])

	ev := <-s.PacketEvents()
	assert.Equal(t, ssrc, ev.Ssrc)
	assert.Equal(t, uint16(100), ev.Seq)

	// sr -> rr
	rtcpSender := dialUdp(t, s.RtcpPort())
	defer rtcpSender.Close()
	blocks := []rtprtcp.ReportBlock{{Ssrc: 1, FractionLost: 3, HighestSeq: 101}}
	_, err = rtcpSender.Write(rtprtcp.BuildSr(ssrc, rtprtcp.NtpNow(), 9000, 2, 100, blocks))
	assert.Equal(t, nil, err)
	_ = rtcpSender.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1500)
	n, err := rtcpSender.Read(buf)
	assert.Equal(t, nil, err)
	pkts, err := rtprtcp.ParseRtcpCompound(buf[:n])
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(pkts))
	assert.Equal(t, uint8(rtprtcp.RtcpPacketTypeRr), pkts[0].Header.PacketType)
	assert.Equal(t, ssrc, pkts[0].SenderSsrc)
	assert.Equal(t, blocks, pkts[0].ReportBlocks)

	for i := 0; i < 200 && s.GetStat().ParseFailed == 0; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	stat := s.GetStat()
	assert.Equal(t, "Running", stat.State)
	assert.Equal(t, uint64(3), stat.ReadPackets)
	assert.Equal(t, uint64(1), stat.ParseFailed)
	assert.Equal(t, 1, stat.SessionNum)
	assert.Equal(t, 1, stat.SubscriberNum)
	assert.Equal(t, uint64(2), stat.ProducedTags)
	assert.Equal(t, uint64(1), stat.RtcpReadPackets)
	assert.Equal(t, uint64(1), stat.RtcpWrotePackets)
	sessions := s.GetSessionStats()
	assert.Equal(t, 1, len(sessions))
	assert.Equal(t, true, sessions[0].LastSrTime != "")

	cancel()
	select {
	case err = <-done:
		assert.Equal(t, nil, err)
	case <-time.After(5 * time.Second):
		t.Fatal("wait run loop exit timeout")
	}
	assert.Equal(t, rtpserver.StateStopped, s.GetState())
	_, ok := <-s.PacketEvents()
	for ok {
		_, ok = <-s.PacketEvents()
	}

	// 只能运行一次
	assert.Equal(t, true, errors.Is(s.RunLoop(context.Background()), base.ErrRtpServerStarted))
}

// 多个ssrc的FU-A分片交错到达，多个worker并行处理时，每个ssrc的帧仍然完整且有序
func TestServerMultiSsrcOrder(t *testing.T) {
	const (
		ssrcNum     = 8
		frameNum    = 50
		fragmentNum = 3
	)

	rtpC, _, rtcpC, _, err := nazanet.NewAvailUdpConnPool(20000, 30000).Acquire2()
	assert.Equal(t, nil, err)

	b := broadcast.NewBroadcaster()
	s := rtpserver.NewServer(b, func(option *rtpserver.ServerOption) {
		option.RtpConn = rtpC
		option.RtcpConn = rtcpC
		option.WorkerNum = 4
	})
	sub := b.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.RunLoop(ctx)
	}()
	waitState(t, s, rtpserver.StateRunning)

	sender := dialUdp(t, s.RtpPort())
	defer sender.Close()

	ssrcOf := func(i int) uint32 {
		return 0x1000 + uint32(i)
	}
	// nal type 1，body中带上ssrc和帧的序号，总共31字节，按12字节拆成3个FU-A分片
	makeNal := func(i, f int) []byte {
		nal := make([]byte, 31)
		nal[0] = 0x41
		nal[1] = uint8(i)
		bele.BePutUint16(nal[2:], uint16(f))
		for j := 4; j < len(nal); j++ {
			nal[j] = uint8(i + f + j)
		}
		return nal
	}

	for i := 0; i < ssrcNum; i++ {
		_, err = sender.Write(rtprtcp.PackRtpPacket(makePacket(ssrcOf(i), 0, 0, rtprtcp.PackAvcStapa([][]byte{spsNal, ppsNal}))))
		assert.Equal(t, nil, err)
	}
	for f := 0; f < frameNum; f++ {
		fragments := make([][][]byte, ssrcNum)
		for i := 0; i < ssrcNum; i++ {
			fragments[i] = rtprtcp.PackAvcNal(makeNal(i, f), 12)
			assert.Equal(t, fragmentNum, len(fragments[i]))
		}
		for k := 0; k < fragmentNum; k++ {
			for i := 0; i < ssrcNum; i++ {
				pkt := makePacket(ssrcOf(i), uint16(1+f*fragmentNum+k), uint32(f*3600), fragments[i][k])
				_, err = sender.Write(rtprtcp.PackRtpPacket(pkt))
				assert.Equal(t, nil, err)
			}
		}
		time.Sleep(time.Millisecond)
	}

	readCtx, readCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer readCancel()
	next := make([]int, ssrcNum)
	initNum, frameTotal := 0, 0
	for frameTotal < ssrcNum*frameNum {
		chunk, err := sub.Read(readCtx)
		assert.Equal(t, nil, err)
		if err != nil {
			break
		}
		if httpflv.IsFlvHeader(chunk) {
			initNum++
			continue
		}

		off := httpflv.TagHeaderSize + httpflv.AvcTagBodyHeaderSize + 4
		assert.Equal(t, true, len(chunk) > off+4)
		i := int(chunk[off+1])
		f := int(bele.BeUint16(chunk[off+2:]))
		assert.Equal(t, next[i], f)
		nal := makeNal(i, f)
		avcc := make([]byte, 4+len(nal))
		bele.BePutUint32(avcc, uint32(len(nal)))
		copy(avcc[4:], nal)
		assert.Equal(t, httpflv.PackAvcNaluTag(uint32(f*40), false, avcc), chunk)
		next[i] = f + 1
		frameTotal++
	}
	assert.Equal(t, ssrcNum, initNum)
	for i := 0; i < ssrcNum; i++ {
		assert.Equal(t, frameNum, next[i])
	}

	stat := s.GetStat()
	assert.Equal(t, ssrcNum, stat.SessionNum)
	assert.Equal(t, uint64(0), stat.ParseFailed)
	for _, session := range s.GetSessionStats() {
		assert.Equal(t, uint64(0), session.LostPackets)
	}

	cancel()
	assert.Equal(t, nil, <-done)
}

func TestServerBindFailed(t *testing.T) {
	occupied, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	assert.Equal(t, nil, err)
	defer occupied.Close()
	port := occupied.LocalAddr().(*net.UDPAddr).Port

	s := rtpserver.NewServer(broadcast.NewBroadcaster(), func(option *rtpserver.ServerOption) {
		option.Port = port
	})
	err = s.RunLoop(context.Background())
	assert.Equal(t, true, errors.Is(err, base.ErrRtpServerBind))
	assert.Equal(t, rtpserver.StateCreated, s.GetState())
}

func TestServerStateString(t *testing.T) {
	assert.Equal(t, "Created", rtpserver.StateCreated.String())
	assert.Equal(t, "Running", rtpserver.StateRunning.String())
	assert.Equal(t, "Stopping", rtpserver.StateStopping.String())
	assert.Equal(t, "Stopped", rtpserver.StateStopped.String())
}
