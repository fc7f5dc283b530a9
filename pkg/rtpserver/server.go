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
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/naza/pkg/nazanet"
	"github.com/wosledon/rtpserver/pkg/base"
	"github.com/wosledon/rtpserver/pkg/broadcast"
	"github.com/wosledon/rtpserver/pkg/remux"
	"github.com/wosledon/rtpserver/pkg/rtprtcp"
	"golang.org/x/sync/errgroup"
)

type ServerState int32

const (
	StateCreated ServerState = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s ServerState) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	}
	return "unknown"
}

type ServerOption struct {
	// Port rtp端口，rtcp固定使用 Port+1
	Port int

	// WorkerNum 为0时使用 max(1, NumCPU/2)
	WorkerNum int

	// QueueSize 接收协程和worker之间的队列总大小，平均分给每个worker，队列满时接收协程阻塞
	QueueSize int

	MaxPacketSize        int
	FuaMaxSize           int
	SessionIdleTimeoutMs int // 为0时不淘汰
	TagChanSize          int
	PacketEventChanSize  int

	// RtpConn RtcpConn 外部已经绑定好的socket，不为nil时忽略Port
	RtpConn  *net.UDPConn
	RtcpConn *net.UDPConn
}

var defaultServerOption = ServerOption{
	Port:                 5004,
	WorkerNum:            0,
	QueueSize:            1024,
	MaxPacketSize:        2048,
	FuaMaxSize:           2 * 1024 * 1024,
	SessionIdleTimeoutMs: 60000,
	TagChanSize:          1024,
	PacketEventChanSize:  1024,
}

type ModServerOption func(option *ServerOption)

// PacketEvent 每个解析成功的rtp包产生一个事件，供外部统计使用
type PacketEvent struct {
	Ssrc       uint32
	Seq        uint16
	Timestamp  uint32
	Payload    []byte
	RemoteAddr *net.UDPAddr
}

type rtpItem struct {
	b     []byte
	raddr *net.UDPAddr
}

// Server 接收rtp/rtcp，按ssrc转换成flv后交给Broadcaster分发
type Server struct {
	uniqueKey      string
	option         ServerOption
	broadcaster    *broadcast.Broadcaster
	sessionManager *SessionManager

	mu       sync.Mutex
	state    ServerState
	rtpConn  *nazanet.UdpConnection
	rtcpConn *nazanet.UdpConnection
	rtpPort  int
	rtcpPort int

	queues  []chan rtpItem // 按ssrc选择，同一个ssrc的包总是由同一个worker按顺序处理
	tagCh   chan []byte
	eventCh chan PacketEvent

	readPackets   nazaatomic.Uint64
	readBytes     nazaatomic.Uint64
	parseFailed   nazaatomic.Uint64
	panicCount    nazaatomic.Uint64
	producedTags  nazaatomic.Uint64
	rtcpRead      nazaatomic.Uint64
	rtcpWrote     nazaatomic.Uint64
	eventsDropped nazaatomic.Uint64
}

func NewServer(broadcaster *broadcast.Broadcaster, modOptions ...ModServerOption) *Server {
	option := defaultServerOption
	for _, fn := range modOptions {
		fn(&option)
	}
	if option.WorkerNum <= 0 {
		option.WorkerNum = runtime.NumCPU() / 2
		if option.WorkerNum < 1 {
			option.WorkerNum = 1
		}
	}

	uk := base.GenUkRtpServer()
	s := &Server{
		uniqueKey:   uk,
		option:      option,
		broadcaster: broadcaster,
		sessionManager: NewSessionManager(func(o *remux.Rtp2FlvRemuxerOption) {
			o.FuaMaxSize = option.FuaMaxSize
		}),
		state:   StateCreated,
		tagCh:   make(chan []byte, option.TagChanSize),
		eventCh: make(chan PacketEvent, option.PacketEventChanSize),
	}
	queueSize := option.QueueSize / option.WorkerNum
	if queueSize < 1 {
		queueSize = 1
	}
	for i := 0; i < option.WorkerNum; i++ {
		s.queues = append(s.queues, make(chan rtpItem, queueSize))
	}
	Log.Infof("[%s] lifecycle new rtp server. option=%+v", uk, option)
	return s
}

// RunLoop 绑定端口并阻塞运行，直到<ctx>结束
//
// 绑定失败时立即返回 base.ErrRtpServerBind。
// <ctx>结束后依次：关闭socket，关闭队列并等待worker处理完剩余的包，等待剩余的tag分发完成。
func (s *Server) RunLoop(ctx context.Context) error {
	if err := s.listen(); err != nil {
		return err
	}
	Log.Infof("[%s] start rtp server. rtp port=%d, rtcp port=%d, worker=%d",
		s.uniqueKey, s.rtpPort, s.rtcpPort, s.option.WorkerNum)

	loops, gctx := errgroup.WithContext(ctx)
	loops.Go(func() error {
		return s.runUdpLoop(gctx, s.rtpConn, s.onReadRtp(gctx))
	})
	loops.Go(func() error {
		return s.runUdpLoop(gctx, s.rtcpConn, s.onReadRtcp(gctx))
	})
	loops.Go(func() error {
		return s.runSweeper(gctx)
	})

	var workers errgroup.Group
	for _, q := range s.queues {
		q := q
		workers.Go(func() error {
			return s.runWorker(q)
		})
	}

	var pump errgroup.Group
	pump.Go(s.runPump)

	<-gctx.Done()
	s.setState(StateStopping)
	Log.Infof("[%s] stopping rtp server.", s.uniqueKey)

	disposeErr := nazaerrors.CombineErrors(s.rtpConn.Dispose(), s.rtcpConn.Dispose())
	loopErr := loops.Wait()

	for _, q := range s.queues {
		close(q)
	}
	_ = workers.Wait()
	close(s.tagCh)
	_ = pump.Wait()
	close(s.eventCh)

	s.setState(StateStopped)
	Log.Infof("[%s] lifecycle dispose rtp server. stat=%+v, dispose err=%v", s.uniqueKey, s.GetStat(), disposeErr)
	return loopErr
}

func (s *Server) GetState() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PacketEvents 消费慢时事件会被丢弃，不影响数据处理；RunLoop退出后关闭
func (s *Server) PacketEvents() <-chan PacketEvent {
	return s.eventCh
}

func (s *Server) SessionManager() *SessionManager {
	return s.sessionManager
}

// LatestInitSegment 实现 httpflv.InitSegmentProvider
func (s *Server) LatestInitSegment() []byte {
	return s.sessionManager.LatestInitSegment()
}

func (s *Server) RtpPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rtpPort
}

func (s *Server) RtcpPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rtcpPort
}

func (s *Server) GetStat() base.StatRtpServer {
	s.mu.Lock()
	state, rtpPort, rtcpPort := s.state, s.rtpPort, s.rtcpPort
	s.mu.Unlock()
	return base.StatRtpServer{
		State:            state.String(),
		RtpPort:          rtpPort,
		RtcpPort:         rtcpPort,
		ReadPackets:      s.readPackets.Load(),
		ReadBytesSum:     s.readBytes.Load(),
		ParseFailed:      s.parseFailed.Load(),
		ProducedTags:     s.producedTags.Load(),
		RtcpReadPackets:  s.rtcpRead.Load(),
		RtcpWrotePackets: s.rtcpWrote.Load(),
		SessionNum:       s.sessionManager.SessionNum(),
		SubscriberNum:    s.broadcaster.SubscriberNum(),
	}
}

func (s *Server) GetSessionStats() []base.StatRtpSession {
	var out []base.StatRtpSession
	s.sessionManager.Iterate(func(session *Session) {
		out = append(out, session.GetStat())
	})
	return out
}

// ---------------------------------------------------------------------------------------------------------------------

func (s *Server) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCreated {
		return base.ErrRtpServerStarted
	}

	rtpC, rtcpC := s.option.RtpConn, s.option.RtcpConn
	if rtpC == nil || rtcpC == nil {
		var err error
		if rtpC, err = listenUdp(s.option.Port); err != nil {
			return err
		}
		if rtcpC, err = listenUdp(s.option.Port + 1); err != nil {
			_ = rtpC.Close()
			return err
		}
	}
	s.rtpPort = rtpC.LocalAddr().(*net.UDPAddr).Port
	s.rtcpPort = rtcpC.LocalAddr().(*net.UDPAddr).Port

	rtpConn, err := newUdpConnection(func(option *nazanet.UdpConnectionOption) {
		option.Conn = rtpC
		option.MaxReadPacketSize = s.option.MaxPacketSize
	})
	if err != nil {
		_ = rtpC.Close()
		_ = rtcpC.Close()
		return nazaerrors.Wrap(err)
	}
	rtcpConn, err := newUdpConnection(func(option *nazanet.UdpConnectionOption) {
		option.Conn = rtcpC
		option.MaxReadPacketSize = s.option.MaxPacketSize
	})
	if err != nil {
		_ = rtpConn.Dispose()
		_ = rtcpC.Close()
		return nazaerrors.Wrap(err)
	}
	s.rtpConn, s.rtcpConn = rtpConn, rtcpConn

	s.state = StateRunning
	return nil
}

func listenUdp(port int) (*net.UDPConn, error) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, base.NewErrRtpServerBind(addr.String(), err)
	}
	return conn, nil
}

func (s *Server) setState(state ServerState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Server) runUdpLoop(ctx context.Context, conn *nazanet.UdpConnection, onRead nazanet.OnReadUdpPacket) error {
	err := conn.RunLoop(onRead)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// 读取错误时等待一段时间后重试
//
// @return 是否继续读取
func (s *Server) waitRetry(ctx context.Context, what string, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	Log.Warnf("[%s] read %s failed, retry later. err=%+v", s.uniqueKey, what, err)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(time.Duration(base.RtpServerReadErrorRetryIntervalMs) * time.Millisecond):
		return true
	}
}

func (s *Server) onReadRtp(ctx context.Context) nazanet.OnReadUdpPacket {
	return func(b []byte, raddr *net.UDPAddr, err error) bool {
		if err != nil {
			return s.waitRetry(ctx, "rtp", err)
		}
		if ctx.Err() != nil {
			return false
		}
		s.readPackets.Increment()
		s.readBytes.Add(uint64(len(b)))

		// 读取buffer会被复用，入队前拷贝
		item := rtpItem{
			b:     append([]byte(nil), b...),
			raddr: raddr,
		}
		select {
		case s.selectQueue(item.b) <- item:
			return true
		case <-ctx.Done():
			return false
		}
	}
}

func (s *Server) onReadRtcp(ctx context.Context) nazanet.OnReadUdpPacket {
	return func(b []byte, raddr *net.UDPAddr, err error) bool {
		if err != nil {
			return s.waitRetry(ctx, "rtcp", err)
		}
		if ctx.Err() != nil {
			return false
		}
		s.rtcpRead.Increment()
		s.handleRtcpPacket(b, raddr)
		return true
	}
}

// selectQueue 不完整解析，直接取rtp header中的ssrc字段，长度不足的包交给第一个worker丢弃
func (s *Server) selectQueue(b []byte) chan rtpItem {
	if len(b) < rtprtcp.RtpFixedHeaderLength {
		return s.queues[0]
	}
	return s.queues[bele.BeUint32(b[8:])%uint32(len(s.queues))]
}

func (s *Server) runWorker(queue chan rtpItem) error {
	for item := range queue {
		s.handleRtpItem(item)
	}
	return nil
}

func (s *Server) handleRtpItem(item rtpItem) {
	defer func() {
		if r := recover(); r != nil {
			s.panicCount.Increment()
			Log.Errorf("[%s] handle rtp packet panic, drop it. r=%v, len=%d", s.uniqueKey, r, len(item.b))
		}
	}()

	pkt, err := rtprtcp.ParseRtpPacket(item.b)
	if err != nil {
		s.parseFailed.Increment()
		if s.parseFailed.Load() <= uint64(base.RtpDebugDumpPacketNum) {
			Log.Warnf("[%s] parse rtp packet failed, drop it. err=%+v, len=%d", s.uniqueKey, err, len(item.b))
		}
		return
	}

	var remoteAddr string
	if item.raddr != nil {
		remoteAddr = item.raddr.String()
	}
	session, _ := s.sessionManager.GetOrCreate(pkt.Header.Ssrc, remoteAddr)
	session.Feed(pkt, time.Now(), s.sessionManager.setLatestInitSegment, func(chunk []byte) {
		s.producedTags.Increment()
		s.tagCh <- chunk
	})

	s.postEvent(PacketEvent{
		Ssrc:       pkt.Header.Ssrc,
		Seq:        pkt.Header.Seq,
		Timestamp:  pkt.Header.Timestamp,
		Payload:    pkt.Payload,
		RemoteAddr: item.raddr,
	})
}

func (s *Server) postEvent(ev PacketEvent) {
	select {
	case s.eventCh <- ev:
	default:
		s.eventsDropped.Increment()
	}
}

func (s *Server) runPump() error {
	for chunk := range s.tagCh {
		s.broadcaster.Publish(chunk)
	}
	return nil
}

func (s *Server) runSweeper(ctx context.Context) error {
	if s.option.SessionIdleTimeoutMs <= 0 {
		return nil
	}
	timeout := time.Duration(s.option.SessionIdleTimeoutMs) * time.Millisecond
	interval := timeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if removed := s.sessionManager.SweepIdle(now, timeout); len(removed) > 0 {
				Log.Infof("[%s] sweep idle sessions. removed=%d, remain=%d", s.uniqueKey, len(removed), s.sessionManager.SessionNum())
			}
		}
	}
}
