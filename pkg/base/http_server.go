// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"net"
	"net/http"
	"reflect"
	"sync"

	"github.com/q191201771/naza/pkg/nazaerrors"
)

const (
	NetworkTcp = "tcp"
)

type LocalAddrCtx struct {
	Addr string

	Network string // 默认为NetworkTcp
}

type Handler func(http.ResponseWriter, *http.Request)

// HttpServerManager 多个模块(httpflv、http api、pprof)可以监听同一个地址，按pattern分发
type HttpServerManager struct {
	mu             sync.Mutex
	addr2ServerCtx map[string]*serverCtx
}

type serverCtx struct {
	addrCtx         LocalAddrCtx
	listener        net.Listener
	httpServer      http.Server
	mux             *http.ServeMux
	pattern2Handler map[string]Handler
}

func NewHttpServerManager() *HttpServerManager {
	return &HttpServerManager{
		addr2ServerCtx: make(map[string]*serverCtx),
	}
}

// AddListen
//
// @param pattern: 与 http.ServeMux 的规则相同
func (s *HttpServerManager) AddListen(addrCtx LocalAddrCtx, pattern string, handler Handler) error {
	if addrCtx.Addr == "" {
		return ErrAddrEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.addr2ServerCtx[addrCtx.Addr]
	if !ok {
		l, err := listen(addrCtx)
		if err != nil {
			return err
		}
		mux := http.NewServeMux()
		ctx = &serverCtx{
			addrCtx:  addrCtx,
			listener: l,
			httpServer: http.Server{
				Handler: mux,
			},
			mux:             mux,
			pattern2Handler: make(map[string]Handler),
		}
		s.addr2ServerCtx[addrCtx.Addr] = ctx
	}

	// 同一个pattern绑定同一个回调函数是允许的，绑定不同回调返回错误
	if prevHandler, ok := ctx.pattern2Handler[pattern]; ok {
		if reflect.ValueOf(prevHandler).Pointer() == reflect.ValueOf(handler).Pointer() {
			return nil
		}
		return ErrMultiRegisterForPattern
	}
	ctx.pattern2Handler[pattern] = handler

	ctx.mux.HandleFunc(pattern, handler)
	return nil
}

// ListenAddr 返回实际监听的地址，配置中端口为0时可以用来获取系统分配的端口
func (s *HttpServerManager) ListenAddr(addr string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, ok := s.addr2ServerCtx[addr]
	if !ok {
		return ""
	}
	return ctx.listener.Addr().String()
}

// RunLoop 阻塞直到任意一个http server返回错误
func (s *HttpServerManager) RunLoop() error {
	s.mu.Lock()
	errChan := make(chan error, len(s.addr2ServerCtx))
	for _, v := range s.addr2ServerCtx {
		go func(ctx *serverCtx) {
			errChan <- ctx.httpServer.Serve(ctx.listener)
			_ = ctx.httpServer.Close()
		}(v)
	}
	s.mu.Unlock()

	return <-errChan
}

func (s *HttpServerManager) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var es []error
	for _, v := range s.addr2ServerCtx {
		es = append(es, v.httpServer.Close())
	}
	return nazaerrors.CombineErrors(es...)
}

func listen(ctx LocalAddrCtx) (net.Listener, error) {
	if ctx.Network == "" {
		ctx.Network = NetworkTcp
	}
	return net.Listen(ctx.Network, ctx.Addr)
}
