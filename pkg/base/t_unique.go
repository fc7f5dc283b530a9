// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "github.com/q191201771/naza/pkg/unique"

const (
	UkPreRtpServer       = "RTPSERVER"
	UkPreRtpSession      = "RTPSESSION"
	UkPreRtp2FlvRemuxer  = "RTP2FLV"
	UkPreBroadcaster     = "BROADCASTER"
	UkPreFlvSubscriber   = "FLVSUB"
	UkPreFlvSubSession   = "HTTPFLVSUB"
	UkPreWsFlvSubSession = "WSFLVSUB"
)

func GenUkRtpServer() string {
	return siUkRtpServer.GenUniqueKey()
}

func GenUkRtpSession() string {
	return siUkRtpSession.GenUniqueKey()
}

func GenUkRtp2FlvRemuxer() string {
	return siUkRtp2FlvRemuxer.GenUniqueKey()
}

func GenUkBroadcaster() string {
	return siUkBroadcaster.GenUniqueKey()
}

func GenUkFlvSubscriber() string {
	return siUkFlvSubscriber.GenUniqueKey()
}

func GenUkFlvSubSession() string {
	return siUkFlvSubSession.GenUniqueKey()
}

func GenUkWsFlvSubSession() string {
	return siUkWsFlvSubSession.GenUniqueKey()
}

var (
	siUkRtpServer       *unique.SingleGenerator
	siUkRtpSession      *unique.SingleGenerator
	siUkRtp2FlvRemuxer  *unique.SingleGenerator
	siUkBroadcaster     *unique.SingleGenerator
	siUkFlvSubscriber   *unique.SingleGenerator
	siUkFlvSubSession   *unique.SingleGenerator
	siUkWsFlvSubSession *unique.SingleGenerator
)

func init() {
	siUkRtpServer = unique.NewSingleGenerator(UkPreRtpServer)
	siUkRtpSession = unique.NewSingleGenerator(UkPreRtpSession)
	siUkRtp2FlvRemuxer = unique.NewSingleGenerator(UkPreRtp2FlvRemuxer)
	siUkBroadcaster = unique.NewSingleGenerator(UkPreBroadcaster)
	siUkFlvSubscriber = unique.NewSingleGenerator(UkPreFlvSubscriber)
	siUkFlvSubSession = unique.NewSingleGenerator(UkPreFlvSubSession)
	siUkWsFlvSubSession = unique.NewSingleGenerator(UkPreWsFlvSubSession)
}
