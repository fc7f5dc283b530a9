// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package rtpserver 接收H264 rtp/rtcp udp数据，每个ssrc对应一个Session，转换后的flv数据交给broadcast分发
package rtpserver

import (
	"github.com/q191201771/naza/pkg/nazanet"
	"github.com/wosledon/rtpserver/pkg/base"
)

var Log = base.Log

// 单元测试中替换
var newUdpConnection = nazanet.NewUdpConnection
