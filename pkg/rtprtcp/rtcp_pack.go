// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtprtcp

import "github.com/q191201771/naza/pkg/bele"

// BuildRr 构造rr包
//
// @param blocks: 超过31个时只取前31个
func BuildRr(ssrc uint32, blocks []ReportBlock) []byte {
	if len(blocks) > RtcpMaxReportBlockNum {
		blocks = blocks[:RtcpMaxReportBlockNum]
	}

	total := RtcpHeaderLength + 4 + len(blocks)*RtcpReportBlockLength
	b := make([]byte, total)

	h := RtcpHeader{
		Version:       RtcpVersion,
		CountOrFormat: uint8(len(blocks)),
		PacketType:    RtcpPacketTypeRr,
		Length:        uint16(total/4 - 1),
	}
	h.PackTo(b)
	bele.BePutUint32(b[4:], ssrc)

	index := RtcpHeaderLength + 4
	for i := range blocks {
		blocks[i].PackTo(b[index:])
		index += RtcpReportBlockLength
	}
	return b
}

// BuildSr 构造sr包
//
// @param ntp: 64位ntp时间戳
func BuildSr(ssrc uint32, ntp uint64, rtpTs uint32, pktCnt uint32, octetCnt uint32, blocks []ReportBlock) []byte {
	if len(blocks) > RtcpMaxReportBlockNum {
		blocks = blocks[:RtcpMaxReportBlockNum]
	}

	total := RtcpHeaderLength + 4 + RtcpSenderInfoLength + len(blocks)*RtcpReportBlockLength
	b := make([]byte, total)

	h := RtcpHeader{
		Version:       RtcpVersion,
		CountOrFormat: uint8(len(blocks)),
		PacketType:    RtcpPacketTypeSr,
		Length:        uint16(total/4 - 1),
	}
	h.PackTo(b)
	bele.BePutUint32(b[4:], ssrc)
	bele.BePutUint64(b[8:], ntp)
	bele.BePutUint32(b[16:], rtpTs)
	bele.BePutUint32(b[20:], pktCnt)
	bele.BePutUint32(b[24:], octetCnt)

	index := RtcpHeaderLength + 4 + RtcpSenderInfoLength
	for i := range blocks {
		blocks[i].PackTo(b[index:])
		index += RtcpReportBlockLength
	}
	return b
}
