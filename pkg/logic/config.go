// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package logic

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/naza/pkg/nazajson"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/wosledon/rtpserver/pkg/base"
)

const ConfVersion = "v0.1.0"

// EnvRtpPort 环境变量中的rtp端口，优先级高于配置文件
const EnvRtpPort = "RTP_PORT"

const (
	defaultRtpPort          = 5004
	defaultHttpflvAddr      = ":8080"
	defaultHttpflvPattern   = "/flv"
	defaultWsflvPattern     = "/ws/flv"
	defaultHttpApiAddr      = ":8083"
	defaultPprofAddr        = ":8084"
	defaultLogFilename      = "./logs/rtpserver.log"
	defaultIdleTimeoutMs    = 60000
	defaultFuaMaxSize       = 2 * 1024 * 1024
	defaultRtpQueueSize     = 1024
	defaultRtpMaxPacketSize = 2048
)

type Config struct {
	ConfVersion   string         `json:"conf_version"`
	ServerId      string         `json:"server_id"`
	RtpConfig     RtpConfig      `json:"rtp"`
	SessionConfig SessionConfig  `json:"session"`
	HttpflvConfig HttpflvConfig  `json:"httpflv"`
	HttpApiConfig HttpApiConfig  `json:"http_api"`
	PprofConfig   PprofConfig    `json:"pprof"`
	LogConfig     nazalog.Option `json:"log"`
}

type RtpConfig struct {
	Port          int `json:"port"` // rtcp使用 port+1
	WorkerNum     int `json:"worker_num"`
	QueueSize     int `json:"queue_size"`
	MaxPacketSize int `json:"max_packet_size"`
}

type SessionConfig struct {
	IdleTimeoutMs int `json:"idle_timeout_ms"`
	FuaMaxSize    int `json:"fua_max_size"`
}

type HttpflvConfig struct {
	Enable          bool   `json:"enable"`
	HttpListenAddr  string `json:"http_listen_addr"`
	UrlPattern      string `json:"url_pattern"`
	WsUrlPattern    string `json:"ws_url_pattern"`
	WaitInitSegment bool   `json:"wait_init_segment"`
}

type HttpApiConfig struct {
	Enable bool   `json:"enable"`
	Addr   string `json:"addr"`
}

type PprofConfig struct {
	Enable bool   `json:"enable"`
	Addr   string `json:"addr"`
}

// ParseConfig 解析配置内容，不存在的配置项使用默认值
func ParseConfig(rawContent []byte) (*Config, error) {
	var config Config
	if err := json.Unmarshal(rawContent, &config); err != nil {
		return nil, nazaerrors.Wrap(err)
	}

	j, err := nazajson.New(rawContent)
	if err != nil {
		return nil, nazaerrors.Wrap(err)
	}

	if !j.Exist("server_id") {
		config.ServerId = "1"
	}
	if !j.Exist("rtp.port") {
		config.RtpConfig.Port = defaultRtpPort
	}
	if !j.Exist("rtp.queue_size") {
		config.RtpConfig.QueueSize = defaultRtpQueueSize
	}
	if !j.Exist("rtp.max_packet_size") {
		config.RtpConfig.MaxPacketSize = defaultRtpMaxPacketSize
	}
	if !j.Exist("session.idle_timeout_ms") {
		config.SessionConfig.IdleTimeoutMs = defaultIdleTimeoutMs
	}
	if !j.Exist("session.fua_max_size") {
		config.SessionConfig.FuaMaxSize = defaultFuaMaxSize
	}

	if !j.Exist("httpflv.enable") {
		config.HttpflvConfig.Enable = true
	}
	if !j.Exist("httpflv.http_listen_addr") {
		config.HttpflvConfig.HttpListenAddr = defaultHttpflvAddr
	}
	if !j.Exist("httpflv.url_pattern") {
		config.HttpflvConfig.UrlPattern = defaultHttpflvPattern
	}
	if !j.Exist("httpflv.ws_url_pattern") {
		config.HttpflvConfig.WsUrlPattern = defaultWsflvPattern
	}
	if !j.Exist("httpflv.wait_init_segment") {
		config.HttpflvConfig.WaitInitSegment = base.HttpflvWaitInitSegmentFlag
	}
	if !j.Exist("http_api.addr") {
		config.HttpApiConfig.Addr = defaultHttpApiAddr
	}
	if !j.Exist("pprof.addr") {
		config.PprofConfig.Addr = defaultPprofAddr
	}

	if !j.Exist("log.level") {
		config.LogConfig.Level = nazalog.LevelDebug
	}
	if !j.Exist("log.filename") {
		config.LogConfig.Filename = defaultLogFilename
	}
	if !j.Exist("log.is_to_stdout") {
		config.LogConfig.IsToStdout = true
	}
	if !j.Exist("log.is_rotate_daily") {
		config.LogConfig.IsRotateDaily = true
	}
	if !j.Exist("log.short_file_flag") {
		config.LogConfig.ShortFileFlag = true
	}
	if !j.Exist("log.assert_behavior") {
		config.LogConfig.AssertBehavior = nazalog.AssertError
	}

	if err := applyEnv(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadConfAndInitLog 解析配置并初始化日志，失败时退出进程
func LoadConfAndInitLog(rawContent []byte) *Config {
	config, err := ParseConfig(rawContent)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "parse conf failed. err=%+v\n", err)
		base.OsExitAndWaitPressIfWindows(1)
	}

	if err = nazalog.Init(func(option *nazalog.Option) {
		*option = config.LogConfig
	}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "initial log failed. err=%+v\n", err)
		base.OsExitAndWaitPressIfWindows(1)
	}
	Log.Info("initial log succ.")

	if config.ConfVersion != "" && config.ConfVersion != ConfVersion {
		Log.Warnf("config version invalid. conf version of rtpserver=%s, conf version of config file=%s",
			ConfVersion, config.ConfVersion)
	}
	Log.Infof("load conf succ. config=%+v", config)
	return config
}

func applyEnv(config *Config) error {
	v, ok := os.LookupEnv(EnvRtpPort)
	if !ok || v == "" {
		return nil
	}
	port, err := strconv.Atoi(v)
	if err != nil || port <= 0 || port >= 65535 {
		return fmt.Errorf("invalid env %s. value=%s", EnvRtpPort, v)
	}
	config.RtpConfig.Port = port
	return nil
}
