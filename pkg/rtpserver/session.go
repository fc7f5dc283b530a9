// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtpserver

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/q191201771/naza/pkg/nazabytes"
	"github.com/wosledon/rtpserver/pkg/base"
	"github.com/wosledon/rtpserver/pkg/remux"
	"github.com/wosledon/rtpserver/pkg/rtprtcp"
)

// Session 一个发送端（ssrc）对应一个Session
//
// 对remuxer的所有访问都在mu的保护下串行执行
type Session struct {
	uniqueKey  string
	ssrc       uint32
	remoteAddr string
	startTime  time.Time

	lastActiveUnixNano nazaatomic.Int64

	mu        sync.Mutex
	remuxer   *remux.Rtp2FlvRemuxer
	logDump   base.LogDump
	hasSeq    bool
	lastSeq   uint16
	readPkts  uint64
	readBytes uint64
	lostPkts  uint64
	lastSr    rtprtcp.Sr
	lastSrAt  time.Time
}

func newSession(ssrc uint32, remoteAddr string, modOptions ...remux.ModRtp2FlvRemuxerOption) *Session {
	uk := base.GenUkRtpSession()
	s := &Session{
		uniqueKey:  uk,
		ssrc:       ssrc,
		remoteAddr: remoteAddr,
		startTime:  time.Now(),
		remuxer:    remux.NewRtp2FlvRemuxer(modOptions...),
		logDump:    base.NewLogDump(Log, base.RtpDebugDumpPacketNum),
	}
	s.lastActiveUnixNano.Store(s.startTime.UnixNano())
	Log.Infof("[%s] lifecycle new rtp session. ssrc=%d, remote=%s, remuxer=%s", uk, ssrc, remoteAddr, s.remuxer.UniqueKey())
	return s
}

// Feed 处理一个rtp包
//
// onInit在init segment生成时回调一次，先于对应的onChunk。
// 所有回调都发生在持有session锁期间，所以同一个ssrc的输出顺序与输入顺序一致。
func (s *Session) Feed(pkt rtprtcp.RtpPacket, now time.Time, onInit func(init []byte), onChunk func(chunk []byte)) {
	s.lastActiveUnixNano.Store(now.UnixNano())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateSeqStat(pkt)

	if s.logDump.ShouldDump() {
		s.logDump.Outf("[%s] read rtp. header=%+v, len=%d, payload=%s", s.uniqueKey, pkt.Header, len(pkt.Raw),
			hex.EncodeToString(nazabytes.Prefix(pkt.Payload, 16)))
	}

	before := s.remuxer.State()
	chunks := s.remuxer.FeedRtpPacket(pkt)
	if before == remux.StateAwaitingParams && s.remuxer.State() == remux.StateReady && onInit != nil {
		onInit(s.remuxer.InitSegment())
	}
	for _, chunk := range chunks {
		onChunk(chunk)
	}
}

// OnSr 记录收到的sender report
func (s *Session) OnSr(sr rtprtcp.Sr, now time.Time) {
	s.lastActiveUnixNano.Store(now.UnixNano())
	s.mu.Lock()
	s.lastSr = sr
	s.lastSrAt = now
	s.mu.Unlock()
}

func (s *Session) UniqueKey() string {
	return s.uniqueKey
}

func (s *Session) Ssrc() uint32 {
	return s.ssrc
}

func (s *Session) LastActiveTime() time.Time {
	return time.Unix(0, s.lastActiveUnixNano.Load())
}

// InitSegment 还没有生成时返回nil
func (s *Session) InitSegment() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remuxer.InitSegment()
}

func (s *Session) GetStat() base.StatRtpSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lastSrTime string
	if !s.lastSrAt.IsZero() {
		lastSrTime = base.ReadableTime(time.Unix(0, int64(rtprtcp.MswLsw2UnixNano(uint64(s.lastSr.Msw), uint64(s.lastSr.Lsw)))))
	}
	return base.StatRtpSession{
		SessionId:     s.uniqueKey,
		Ssrc:          s.ssrc,
		RemoteAddr:    s.remoteAddr,
		StartTime:     base.ReadableTime(s.startTime),
		ReadPackets:   s.readPkts,
		ReadBytesSum:  s.readBytes,
		LostPackets:   s.lostPkts,
		LastSeq:       s.lastSeq,
		InitSegmentOk: s.remuxer.State() == remux.StateReady,
		LastSrTime:    lastSrTime,
	}
}

func (s *Session) dispose(reason string) {
	s.mu.Lock()
	readPkts, lostPkts, state := s.readPkts, s.lostPkts, s.remuxer.State()
	s.mu.Unlock()
	Log.Infof("[%s] lifecycle dispose rtp session. reason=%s, ssrc=%d, read=%d, lost=%d, state=%s",
		s.uniqueKey, reason, s.ssrc, readPkts, lostPkts, state)
}

// 只统计序号前进时跳过的包，乱序或重复的包不回退lastSeq
func (s *Session) updateSeqStat(pkt rtprtcp.RtpPacket) {
	s.readPkts++
	s.readBytes += uint64(len(pkt.Raw))

	seq := pkt.Header.Seq
	if !s.hasSeq {
		s.hasSeq = true
		s.lastSeq = seq
		return
	}
	diff := rtprtcp.SubSeq(seq, s.lastSeq)
	if diff > 0 {
		s.lostPkts += uint64(diff - 1)
		s.lastSeq = seq
	}
}
