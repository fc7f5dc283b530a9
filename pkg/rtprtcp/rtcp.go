// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtprtcp

import (
	"fmt"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/wosledon/rtpserver/pkg/base"
)

// -------------------------------------------
// rfc3550 6.4.1 SR: Sender Report RTCP Packet
// -------------------------------------------
//
//        0                   1                   2                   3
//        0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//        +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// header |V=2|P|    RC   |   PT=SR=200   |             length            |
//        +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//        |                         SSRC of sender                        |
//        +=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+
// sender |              NTP timestamp, most significant word             |
// info   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//        |             NTP timestamp, least significant word             |
//        +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//        |                         RTP timestamp                         |
//        +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//        |                     sender's packet count                     |
//        +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//        |                      sender's octet count                     |
//        +=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+
// report |                 SSRC_1 (SSRC of first source)                 |
// block  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//   1    | fraction lost |       cumulative number of packets lost       |
//        +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//        |           extended highest sequence number received           |
//        +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//        |                      interarrival jitter                      |
//        +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//        |                         last SR (LSR)                         |
//        +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//        |                   delay since last SR (DLSR)                  |
//        +=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+
// report |                 SSRC_2 (SSRC of second source)                |
// block  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//   2    :                               ...                             :
//        +=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+
//        |                  profile-specific extensions                  |
//        +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// RR(rfc3550 6.4.2)与SR相比，PT为201，并且没有sender info这20个字节

const (
	RtcpPacketTypeSr   = 200 // 0xc8 Sender Report
	RtcpPacketTypeRr   = 201 // 0xc9 Receiver Report
	RtcpPacketTypeSdes = 202
	RtcpPacketTypeBye  = 203
	RtcpPacketTypeApp  = 204

	RtcpHeaderLength      = 4
	RtcpSenderInfoLength  = 20
	RtcpReportBlockLength = 24

	RtcpVersion = 2

	// RtcpMaxReportBlockNum RC字段只有5位
	RtcpMaxReportBlockNum = 31
)

type RtcpHeader struct {
	Version       uint8  // 2b
	Padding       uint8  // 1b
	CountOrFormat uint8  // 5b
	PacketType    uint8  // 8b
	Length        uint16 // 16b, whole packet byte length = (Length+1) * 4
}

type Sr struct {
	SenderSsrc uint32
	Msw        uint32 // NTP timestamp, most significant word
	Lsw        uint32 // NTP timestamp, least significant word
	Timestamp  uint32
	PktCnt     uint32
	OctetCnt   uint32
}

type ReportBlock struct {
	Ssrc           uint32
	FractionLost   uint8
	CumulativeLost int32 // 线上是24位有符号数
	HighestSeq     uint32
	Jitter         uint32
	Lsr            uint32
	Dlsr           uint32
}

type RtcpPacket struct {
	Header     RtcpHeader
	SenderSsrc uint32

	Sr Sr // 只有 Header.PacketType 为 RtcpPacketTypeSr 时有效

	ReportBlocks []ReportBlock

	Raw []byte // 整个rtcp包，长度为(Header.Length+1)*4
}

func ParseRtcpHeader(b []byte) (h RtcpHeader, err error) {
	if len(b) < RtcpHeaderLength {
		err = base.NewErrRtpRtcpShortBuffer(RtcpHeaderLength, len(b), "rtcp header")
		return
	}
	h.Version = b[0] >> 6
	h.Padding = (b[0] >> 5) & 0x1
	h.CountOrFormat = b[0] & 0x1F
	h.PacketType = b[1]
	h.Length = bele.BeUint16(b[2:])
	return
}

// PackTo @param out 传出参数，注意，调用方保证长度>=4
func (r *RtcpHeader) PackTo(out []byte) {
	out[0] = r.Version<<6 | r.Padding<<5 | r.CountOrFormat
	out[1] = r.PacketType
	bele.BePutUint16(out[2:], r.Length)
}

// ByteLength 整个rtcp包的字节数
func (r *RtcpHeader) ByteLength() int {
	return (int(r.Length) + 1) * 4
}

// ParseSr rfc3550 6.4.1
//
// @param b rtcp包，包含包头，调用方保证长度>=28
func ParseSr(b []byte) Sr {
	var s Sr
	s.SenderSsrc = bele.BeUint32(b[4:])
	s.Msw = bele.BeUint32(b[8:])
	s.Lsw = bele.BeUint32(b[12:])
	s.Timestamp = bele.BeUint32(b[16:])
	s.PktCnt = bele.BeUint32(b[20:])
	s.OctetCnt = bele.BeUint32(b[24:])
	return s
}

func (s *Sr) Ntp() uint64 {
	return MswLsw2Ntp(uint64(s.Msw), uint64(s.Lsw))
}

// GetMiddleNtp ntp的中间32位，rr包中的LSR字段
func (s *Sr) GetMiddleNtp() uint32 {
	return uint32(((uint64(s.Msw)<<32 | uint64(s.Lsw)) << 16) >> 32)
}

// ParseReportBlock @param b 调用方保证长度>=24
func ParseReportBlock(b []byte) (rb ReportBlock) {
	rb.Ssrc = bele.BeUint32(b)
	rb.FractionLost = b[4]
	lost := bele.BeUint24(b[5:])
	if lost&0x800000 != 0 {
		lost |= 0xFF000000
	}
	rb.CumulativeLost = int32(lost)
	rb.HighestSeq = bele.BeUint32(b[8:])
	rb.Jitter = bele.BeUint32(b[12:])
	rb.Lsr = bele.BeUint32(b[16:])
	rb.Dlsr = bele.BeUint32(b[20:])
	return
}

// PackTo @param out 调用方保证长度>=24
func (rb *ReportBlock) PackTo(out []byte) {
	bele.BePutUint32(out, rb.Ssrc)
	out[4] = rb.FractionLost
	bele.BePutUint24(out[5:], uint32(rb.CumulativeLost)&0xFFFFFF)
	bele.BePutUint32(out[8:], rb.HighestSeq)
	bele.BePutUint32(out[12:], rb.Jitter)
	bele.BePutUint32(out[16:], rb.Lsr)
	bele.BePutUint32(out[20:], rb.Dlsr)
}

// ParseRtcpPacket 解析<b>开头的一个rtcp包，<b>后面多余的数据被忽略
//
// SR和RR的report block按包头中的length能容纳的数量解析，不依赖RC字段。
// 其他类型的包只解析包头和sender ssrc。
//
// 注意，返回值中的 Raw 引用参数<b>的内存块
func ParseRtcpPacket(b []byte) (pkt RtcpPacket, err error) {
	pkt.Header, err = ParseRtcpHeader(b)
	if err != nil {
		return
	}
	total := pkt.Header.ByteLength()
	if total > len(b) {
		err = base.NewErrRtpRtcpShortBuffer(total, len(b), "rtcp length")
		return
	}
	pkt.Raw = b[:total]

	if total >= RtcpHeaderLength+4 {
		pkt.SenderSsrc = bele.BeUint32(b[4:])
	}

	var index int
	switch pkt.Header.PacketType {
	case RtcpPacketTypeSr:
		index = RtcpHeaderLength + 4 + RtcpSenderInfoLength
		if total < index {
			err = base.NewErrRtcpMalformed(fmt.Sprintf("sr too short. len=%d", total))
			return
		}
		pkt.Sr = ParseSr(b)
	case RtcpPacketTypeRr:
		index = RtcpHeaderLength + 4
		if total < index {
			err = base.NewErrRtcpMalformed(fmt.Sprintf("rr too short. len=%d", total))
			return
		}
	default:
		return
	}

	for ; index+RtcpReportBlockLength <= total; index += RtcpReportBlockLength {
		pkt.ReportBlocks = append(pkt.ReportBlocks, ParseReportBlock(b[index:]))
	}
	return
}

// ParseRtcpCompound 解析复合rtcp包，比如SR+SDES
//
// 遇到错误时，返回错误以及出错之前已经解析成功的包
func ParseRtcpCompound(b []byte) (pkts []RtcpPacket, err error) {
	for len(b) > 0 {
		var pkt RtcpPacket
		pkt, err = ParseRtcpPacket(b)
		if err != nil {
			return
		}
		pkts = append(pkts, pkt)
		b = b[len(pkt.Raw):]
	}
	return
}
