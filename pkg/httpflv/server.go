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
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/wosledon/rtpserver/pkg/base"
	"github.com/wosledon/rtpserver/pkg/broadcast"
)

// Server 提供http-flv和websocket-flv两种拉流方式，由 base.HttpServerManager 负责监听
type Server struct {
	broadcaster *broadcast.Broadcaster
	provider    InitSegmentProvider
	modOptions  []ModSubSessionOption
	upgrader    websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*SubSession
}

func NewServer(broadcaster *broadcast.Broadcaster, provider InitSegmentProvider, modOptions ...ModSubSessionOption) *Server {
	return &Server{
		broadcaster: broadcaster,
		provider:    provider,
		modOptions:  modOptions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*SubSession),
	}
}

// ServeHttpflv GET请求，以http chunked的方式持续下发flv
func (s *Server) ServeHttpflv(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
		return
	}
	Log.Infof("-----> http request. uri=%s, remote=%s", r.RequestURI, r.RemoteAddr)

	hw := newHttpChunkWriter(w)
	hw.WriteHeader()

	session := NewSubSession(base.GenUkFlvSubSession(), r.RemoteAddr, s.broadcaster, s.provider, hw, s.modOptions...)
	s.runSession(r.Context(), session)
}

// ServeWsflv websocket升级之后，每块flv数据作为一个binary message下发
func (s *Server) ServeWsflv(w http.ResponseWriter, r *http.Request) {
	Log.Infof("-----> websocket request. uri=%s, remote=%s", r.RequestURI, r.RemoteAddr)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnf("websocket upgrade failed. remote=%s, err=%+v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	// 客户端不会发数据，读协程只用于感知连接关闭
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	modOptions := append(append([]ModSubSessionOption(nil), s.modOptions...), func(option *SubSessionOption) {
		option.Protocol = base.ProtocolWsflv
	})
	session := NewSubSession(base.GenUkWsFlvSubSession(), r.RemoteAddr, s.broadcaster, s.provider, &wsChunkWriter{conn: conn}, modOptions...)
	s.runSession(ctx, session)
}

// SessionNum 当前正在拉流的session数量
func (s *Server) SessionNum() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) GetSubSessionStats() []base.StatSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]base.StatSub, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.GetStat())
	}
	return out
}

func (s *Server) runSession(ctx context.Context, session *SubSession) {
	s.mu.Lock()
	s.sessions[session.UniqueKey()] = session
	s.mu.Unlock()

	err := session.RunLoop(ctx)
	Log.Infof("[%s] flv sub session loop done. err=%v", session.UniqueKey(), err)
	session.Dispose()

	s.mu.Lock()
	delete(s.sessions, session.UniqueKey())
	s.mu.Unlock()
}
