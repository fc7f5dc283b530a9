// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package logic_test

import (
	"os"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/wosledon/rtpserver/pkg/logic"
)

func TestParseConfigDefault(t *testing.T) {
	config, err := logic.ParseConfig([]byte(`{}`))
	assert.Equal(t, nil, err)
	assert.Equal(t, "1", config.ServerId)
	assert.Equal(t, 5004, config.RtpConfig.Port)
	assert.Equal(t, 0, config.RtpConfig.WorkerNum)
	assert.Equal(t, 1024, config.RtpConfig.QueueSize)
	assert.Equal(t, 2048, config.RtpConfig.MaxPacketSize)
	assert.Equal(t, 60000, config.SessionConfig.IdleTimeoutMs)
	assert.Equal(t, 2*1024*1024, config.SessionConfig.FuaMaxSize)
	assert.Equal(t, true, config.HttpflvConfig.Enable)
	assert.Equal(t, ":8080", config.HttpflvConfig.HttpListenAddr)
	assert.Equal(t, "/flv", config.HttpflvConfig.UrlPattern)
	assert.Equal(t, "/ws/flv", config.HttpflvConfig.WsUrlPattern)
	assert.Equal(t, true, config.HttpflvConfig.WaitInitSegment)
	assert.Equal(t, false, config.HttpApiConfig.Enable)
	assert.Equal(t, false, config.PprofConfig.Enable)
	assert.Equal(t, nazalog.LevelDebug, config.LogConfig.Level)
	assert.Equal(t, true, config.LogConfig.IsToStdout)
	assert.Equal(t, nazalog.AssertError, config.LogConfig.AssertBehavior)

	// 缺省的日志配置可以直接用于初始化
	assert.Equal(t, nil, nazalog.Init(func(option *nazalog.Option) {
		*option = config.LogConfig
		option.Filename = ""
	}))
}

func TestParseConfig(t *testing.T) {
	raw := `{
  "rtp": {"port": 6000, "worker_num": 3},
  "session": {"idle_timeout_ms": 0, "fua_max_size": 1024},
  "httpflv": {"enable": false, "url_pattern": "/live.flv", "wait_init_segment": false},
  "http_api": {"enable": true, "addr": ":9000"},
  "log": {"level": 2, "is_to_stdout": false}
}`
	config, err := logic.ParseConfig([]byte(raw))
	assert.Equal(t, nil, err)
	assert.Equal(t, 6000, config.RtpConfig.Port)
	assert.Equal(t, 3, config.RtpConfig.WorkerNum)
	// 显式配置为0时不使用默认值
	assert.Equal(t, 0, config.SessionConfig.IdleTimeoutMs)
	assert.Equal(t, 1024, config.SessionConfig.FuaMaxSize)
	assert.Equal(t, false, config.HttpflvConfig.Enable)
	assert.Equal(t, "/live.flv", config.HttpflvConfig.UrlPattern)
	assert.Equal(t, false, config.HttpflvConfig.WaitInitSegment)
	assert.Equal(t, true, config.HttpApiConfig.Enable)
	assert.Equal(t, ":9000", config.HttpApiConfig.Addr)
	assert.Equal(t, nazalog.LevelInfo, config.LogConfig.Level)
	assert.Equal(t, false, config.LogConfig.IsToStdout)
	assert.Equal(t, nazalog.AssertError, config.LogConfig.AssertBehavior)

	config, err = logic.ParseConfig([]byte(`{"log": {"assert_behavior": 3}}`))
	assert.Equal(t, nil, err)
	assert.Equal(t, nazalog.AssertPanic, config.LogConfig.AssertBehavior)
}

func TestParseConfigEnv(t *testing.T) {
	t.Setenv(logic.EnvRtpPort, "7000")
	config, err := logic.ParseConfig([]byte(`{"rtp": {"port": 6000}}`))
	assert.Equal(t, nil, err)
	assert.Equal(t, 7000, config.RtpConfig.Port)

	t.Setenv(logic.EnvRtpPort, "abc")
	_, err = logic.ParseConfig([]byte(`{}`))
	assert.IsNotNil(t, err)

	t.Setenv(logic.EnvRtpPort, "")
	config, err = logic.ParseConfig([]byte(`{}`))
	assert.Equal(t, nil, err)
	assert.Equal(t, 5004, config.RtpConfig.Port)
}

func TestParseConfigInvalid(t *testing.T) {
	_, err := logic.ParseConfig([]byte(`{"rtp": `))
	assert.IsNotNil(t, err)
}

func TestDefaultConfFile(t *testing.T) {
	// 仓库自带的配置文件可以正常解析
	raw, err := os.ReadFile("../../conf/rtpserver.conf.json")
	assert.Equal(t, nil, err)
	config, err := logic.ParseConfig(raw)
	assert.Equal(t, nil, err)
	assert.Equal(t, logic.ConfVersion, config.ConfVersion)
}
