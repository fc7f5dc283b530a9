// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package logic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"sync"

	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/wosledon/rtpserver/pkg/base"
	"github.com/wosledon/rtpserver/pkg/broadcast"
	"github.com/wosledon/rtpserver/pkg/httpflv"
	"github.com/wosledon/rtpserver/pkg/rtpserver"
	"golang.org/x/sync/errgroup"
)

type Option struct {
	// ConfFilename 配置文件，ConfRawContent不为空时忽略
	ConfFilename string

	// ConfRawContent 直接传入配置内容
	ConfRawContent []byte
}

var defaultOption = Option{}

type ModOption func(option *Option)

type ServerManager struct {
	option Option
	config *Config

	broadcaster       *broadcast.Broadcaster
	rtpServer         *rtpserver.Server
	httpflvServer     *httpflv.Server
	httpServerManager *base.HttpServerManager
	httpApiServer     *HttpApiServer
	pprofServer       *http.Server

	ctx         context.Context
	cancel      context.CancelFunc
	disposeOnce sync.Once
}

func NewServerManager(modOption ...ModOption) *ServerManager {
	sm := &ServerManager{}
	sm.option = defaultOption
	for _, fn := range modOption {
		fn(&sm.option)
	}
	sm.ctx, sm.cancel = context.WithCancel(context.Background())

	rawContent := sm.option.ConfRawContent
	if len(rawContent) == 0 {
		rawContent = base.WrapReadConfigFile(sm.option.ConfFilename, DefaultConfFilenameList, func() {
			_, _ = fmt.Fprintf(os.Stderr, `
Example:
  %s -c %s

Github: %s
`, os.Args[0], filepath.FromSlash("./conf/rtpserver.conf.json"), base.GithubSite)
		})
	}
	sm.config = LoadConfAndInitLog(rawContent)
	base.LogoutStartInfo()

	sm.broadcaster = broadcast.NewBroadcaster()
	sm.rtpServer = rtpserver.NewServer(sm.broadcaster, func(option *rtpserver.ServerOption) {
		option.Port = sm.config.RtpConfig.Port
		option.WorkerNum = sm.config.RtpConfig.WorkerNum
		option.QueueSize = sm.config.RtpConfig.QueueSize
		option.MaxPacketSize = sm.config.RtpConfig.MaxPacketSize
		option.FuaMaxSize = sm.config.SessionConfig.FuaMaxSize
		option.SessionIdleTimeoutMs = sm.config.SessionConfig.IdleTimeoutMs
	})

	if sm.config.HttpflvConfig.Enable || sm.config.HttpApiConfig.Enable {
		sm.httpServerManager = base.NewHttpServerManager()
	}
	if sm.config.HttpflvConfig.Enable {
		sm.httpflvServer = httpflv.NewServer(sm.broadcaster, sm.rtpServer, func(option *httpflv.SubSessionOption) {
			option.WaitInitSegment = sm.config.HttpflvConfig.WaitInitSegment
		})
	}
	if sm.config.HttpApiConfig.Enable {
		sm.httpApiServer = NewHttpApiServer(sm)
	}
	if sm.config.PprofConfig.Enable {
		sm.pprofServer = &http.Server{Addr: sm.config.PprofConfig.Addr, Handler: nil}
	}
	return sm
}

// RunLoop 阻塞直到Dispose被调用，或者任意一个服务出错
func (sm *ServerManager) RunLoop() error {
	go base.RunSignalHandler(func() {
		sm.Dispose()
	})

	if err := sm.addHttpListens(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(sm.ctx)

	g.Go(func() error {
		return sm.rtpServer.RunLoop(ctx)
	})

	if sm.httpServerManager != nil {
		g.Go(func() error {
			err := sm.httpServerManager.RunLoop()
			if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}

	if sm.pprofServer != nil {
		g.Go(func() error {
			Log.Infof("start web pprof listen. addr=%s", sm.config.PprofConfig.Addr)
			err := sm.pprofServer.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}

	// 任意一个服务退出后，关闭其他的http服务
	g.Go(func() error {
		<-ctx.Done()
		var es []error
		if sm.httpServerManager != nil {
			es = append(es, sm.httpServerManager.Dispose())
		}
		if sm.pprofServer != nil {
			es = append(es, sm.pprofServer.Close())
		}
		if err := nazaerrors.CombineErrors(es...); err != nil {
			Log.Warnf("close http servers failed. err=%+v", err)
		}
		return nil
	})

	err := g.Wait()
	sm.broadcaster.Dispose()
	Log.Infof("server manager exit. err=%v", err)
	return err
}

// Dispose 可以多次调用
func (sm *ServerManager) Dispose() {
	sm.disposeOnce.Do(func() {
		Log.Debug("dispose server manager.")
		sm.cancel()
	})
}

func (sm *ServerManager) Config() *Config {
	return sm.config
}

// HttpListenAddr 返回http服务实际监听的地址，没有监听时返回空字符串
func (sm *ServerManager) HttpListenAddr(configAddr string) string {
	if sm.httpServerManager == nil {
		return ""
	}
	return sm.httpServerManager.ListenAddr(configAddr)
}

func (sm *ServerManager) StatServerInfo() base.ServerInfo {
	return base.ServerInfo{
		ServerId:   sm.config.ServerId,
		BinInfo:    base.FullInfo,
		Version:    base.Version,
		ApiVersion: base.HttpApiVersion,
		StartTime:  base.GetStartTime(),
	}
}

func (sm *ServerManager) StatRtpServer() base.StatRtpServer {
	return sm.rtpServer.GetStat()
}

func (sm *ServerManager) StatRtpSessions() []base.StatRtpSession {
	return sm.rtpServer.GetSessionStats()
}

// StatSubSessions 没有开启httpflv时返回空列表
func (sm *ServerManager) StatSubSessions() []base.StatSub {
	if sm.httpflvServer == nil {
		return []base.StatSub{}
	}
	return sm.httpflvServer.GetSubSessionStats()
}

// ---------------------------------------------------------------------------------------------------------------------

func (sm *ServerManager) addHttpListens() error {
	var addMux = func(addr string, pattern string, handler base.Handler, name string) error {
		err := sm.httpServerManager.AddListen(base.LocalAddrCtx{Addr: addr}, pattern, handler)
		if err != nil {
			Log.Errorf("add http listen for %s failed. addr=%s, pattern=%s, err=%+v", name, addr, pattern, err)
			return err
		}
		Log.Infof("add http listen for %s. addr=%s, pattern=%s", name, addr, pattern)
		return nil
	}

	if sm.httpflvServer != nil {
		c := sm.config.HttpflvConfig
		if err := addMux(c.HttpListenAddr, c.UrlPattern, sm.httpflvServer.ServeHttpflv, "httpflv"); err != nil {
			return err
		}
		if c.WsUrlPattern != "" {
			if err := addMux(c.HttpListenAddr, c.WsUrlPattern, sm.httpflvServer.ServeWsflv, "wsflv"); err != nil {
				return err
			}
		}
	}

	if sm.httpApiServer != nil {
		addr := sm.config.HttpApiConfig.Addr
		if err := addMux(addr, "/api/stat/server_info", sm.httpApiServer.statServerInfoHandler, "httpapi"); err != nil {
			return err
		}
		if err := addMux(addr, "/api/stat/rtp", sm.httpApiServer.statRtpHandler, "httpapi"); err != nil {
			return err
		}
	}
	return nil
}
