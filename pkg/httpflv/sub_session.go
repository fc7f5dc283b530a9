// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package httpflv

import (
	"context"
	"errors"
	"time"

	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/wosledon/rtpserver/pkg/base"
	"github.com/wosledon/rtpserver/pkg/broadcast"
)

// InitSegmentProvider 提供最近一次生成的init segment（flv文件头 + seq header tag），没有时返回nil
type InitSegmentProvider interface {
	LatestInitSegment() []byte
}

// ChunkWriter 将一块flv数据写给拉流客户端
type ChunkWriter interface {
	WriteChunk(b []byte) error
}

type SubSessionOption struct {
	// WaitInitSegment 为true时，没有可用的init segment前不下发任何数据
	// 为false时，先下发一个只有视频的flv文件头，随后直接转发
	WaitInitSegment bool

	// Protocol 只用于统计
	Protocol string
}

type ModSubSessionOption func(option *SubSessionOption)

// SubSession 从Broadcaster订阅flv数据并写给一个拉流客户端
//
// 传输层（http或websocket）由ChunkWriter决定
type SubSession struct {
	uniqueKey  string
	remoteAddr string
	option     SubSessionOption

	broadcaster *broadcast.Broadcaster
	provider    InitSegmentProvider
	writer      ChunkWriter

	// IsFresh 还没有写过flv文件头
	IsFresh bool

	startTime    time.Time
	wroteBytes   nazaatomic.Uint64
	wroteChunks  nazaatomic.Uint64
	droppedChunk nazaatomic.Uint64
}

// NewSubSession
//
// @param provider: 可以为nil
func NewSubSession(uniqueKey string, remoteAddr string, broadcaster *broadcast.Broadcaster, provider InitSegmentProvider, writer ChunkWriter, modOptions ...ModSubSessionOption) *SubSession {
	option := SubSessionOption{
		WaitInitSegment: base.HttpflvWaitInitSegmentFlag,
		Protocol:        base.ProtocolHttpflv,
	}
	for _, fn := range modOptions {
		fn(&option)
	}
	s := &SubSession{
		uniqueKey:   uniqueKey,
		remoteAddr:  remoteAddr,
		option:      option,
		broadcaster: broadcaster,
		provider:    provider,
		writer:      writer,
		IsFresh:     true,
		startTime:   time.Now(),
	}
	Log.Infof("[%s] lifecycle new flv SubSession. session=%p, remote addr=%s", uniqueKey, s, remoteAddr)
	return s
}

// RunLoop 阻塞直到<ctx>结束、写失败或者Broadcaster关闭
func (s *SubSession) RunLoop(ctx context.Context) error {
	// 先订阅再读取缓存，避免两者之间产生的init segment丢失
	sub := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(sub)

	if s.provider != nil {
		if init := s.provider.LatestInitSegment(); init != nil {
			Log.Debugf("[%s] > W cached init segment. len=%d", s.uniqueKey, len(init))
			if err := s.write(init); err != nil {
				return err
			}
			s.IsFresh = false
		}
	}
	if s.IsFresh && !s.option.WaitInitSegment {
		Log.Debugf("[%s] > W flv header.", s.uniqueKey)
		if err := s.write(FlvHeader); err != nil {
			return err
		}
		s.IsFresh = false
	}

	for {
		chunk, err := sub.Read(ctx)
		if err != nil {
			if errors.Is(err, base.ErrSubscriberClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		out := s.filter(chunk)
		if out == nil {
			s.droppedChunk.Increment()
			continue
		}
		if err = s.write(out); err != nil {
			return err
		}
	}
}

func (s *SubSession) UniqueKey() string {
	return s.uniqueKey
}

func (s *SubSession) RemoteAddr() string {
	return s.remoteAddr
}

func (s *SubSession) GetStat() base.StatSub {
	return base.StatSub{
		SessionId:     s.uniqueKey,
		Protocol:      s.option.Protocol,
		RemoteAddr:    s.remoteAddr,
		StartTime:     base.ReadableTime(s.startTime),
		WroteBytesSum: s.wroteBytes.Load(),
		WroteChunks:   s.wroteChunks.Load(),
		DroppedChunks: s.droppedChunk.Load(),
	}
}

func (s *SubSession) Dispose() {
	Log.Infof("[%s] lifecycle dispose flv SubSession. wrote=%d, dropped=%d, cost=%s",
		s.uniqueKey, s.wroteBytes.Load(), s.droppedChunk.Load(), time.Since(s.startTime).String())
}

// filter 决定一块数据是否以及如何下发
//
// 第一个init segment原样下发，之后的init segment去掉13字节的flv文件头，只下发seq header tag。
// 写flv文件头之前的普通tag丢弃。
func (s *SubSession) filter(chunk []byte) []byte {
	if IsFlvHeader(chunk) {
		if s.IsFresh {
			s.IsFresh = false
			return chunk
		}
		if len(chunk) == FlvHeaderWithPrevTagSize {
			return nil
		}
		return chunk[FlvHeaderWithPrevTagSize:]
	}
	if s.IsFresh {
		return nil
	}
	return chunk
}

func (s *SubSession) write(b []byte) error {
	if err := s.writer.WriteChunk(b); err != nil {
		Log.Warnf("[%s] write failed. err=%+v", s.uniqueKey, err)
		return err
	}
	s.wroteBytes.Add(uint64(len(b)))
	s.wroteChunks.Increment()
	return nil
}
