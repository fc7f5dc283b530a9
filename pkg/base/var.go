// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "github.com/q191201771/naza/pkg/nazalog"

var Log = nazalog.GetGlobalLogger()

// ----- rtpserver --------------------
var (
	// RtpServerReadErrorRetryIntervalMs udp读取失败后，等待多久再重试
	RtpServerReadErrorRetryIntervalMs = 100

	// RtpDebugDumpPacketNum 日志级别为debug时，每个session打印前多少个rtp包的信息
	RtpDebugDumpPacketNum = 10
)

// ----- httpflv --------------------
const (
	ProtocolHttpflv = "HTTP-FLV"
	ProtocolWsflv   = "WS-FLV"
)

var (
	// HttpflvWaitInitSegmentFlag 没有缓存的init segment时，新的sub session是否等待第一个init segment再下发数据
	HttpflvWaitInitSegmentFlag = true
)
