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

// -----------------------------------
// rfc3550 5.1 RTP Fixed Header Fields
// -----------------------------------
//
// 0                   1                   2                   3
// 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |V=2|P|X|  CC   |M|     PT      |       sequence number         |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                           timestamp                           |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |           synchronization source (SSRC) identifier            |
// +=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+
// |            contributing source (CSRC) identifiers             |
// |                             ....                              |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// ------------------------------------
// rfc3550 5.3.1 RTP Header Extension
// ------------------------------------
//
// 0                   1                   2                   3
// 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |      defined by profile       |           length              |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                        header extension                       |
// |                             ....                              |

const (
	RtpFixedHeaderLength     = 12
	RtpExtensionHeaderLength = 4

	DefaultRtpVersion = 2

	// RtpExtensionProfileOneByte rfc8285 4.2 One-Byte Header
	RtpExtensionProfileOneByte = 0xBEDE
)

type RtpHeader struct {
	Version    uint8  // 2b  *
	Padding    uint8  // 1b
	Extension  uint8  // 1
	CsrcCount  uint8  // 4b
	Mark       uint8  // 1b  *
	PacketType uint8  // 7b
	Seq        uint16 // 16b **
	Timestamp  uint32 // 32b **** samples
	Ssrc       uint32 // 32b **** Synchronization source
}

type RtpPacket struct {
	Header RtpHeader
	Csrcs  []uint32

	ExtensionProfile uint16
	ExtensionRaw     []byte         // 不包含profile和length这4个字节
	Extensions       []RtpExtension // 只有profile为0xBEDE时才解析

	Payload     []byte // 不包含padding
	PaddingSize uint8

	Raw []byte // 包含header的完整rtp包
}

func MakeDefaultRtpHeader() RtpHeader {
	return RtpHeader{
		Version: DefaultRtpVersion,
	}
}

func (h *RtpHeader) PackTo(out []byte) {
	out[0] = h.CsrcCount | (h.Extension << 4) | (h.Padding << 5) | (h.Version << 6)
	out[1] = h.PacketType | (h.Mark << 7)
	bele.BePutUint16(out[2:], h.Seq)
	bele.BePutUint32(out[4:], h.Timestamp)
	bele.BePutUint32(out[8:], h.Ssrc)
}

// MakeRtpPacket 使用header和payload构造一个没有csrc、扩展头、padding的rtp包
func MakeRtpPacket(h RtpHeader, payload []byte) (pkt RtpPacket) {
	h.CsrcCount = 0
	h.Extension = 0
	h.Padding = 0
	pkt.Header = h
	pkt.Payload = payload
	pkt.Raw = PackRtpPacket(pkt)
	pkt.Payload = pkt.Raw[RtpFixedHeaderLength:]
	return
}

// PackRtpPacket 将rtp包序列化
//
// csrc count由 pkt.Csrcs 决定，Header.Extension 为1或者 ExtensionRaw 不为空时写入扩展头，
// Header.Padding 为1时在末尾写入 PaddingSize 个字节的padding
//
// @return 内存块为独立新申请
func PackRtpPacket(pkt RtpPacket) []byte {
	h := pkt.Header
	csrcNum := len(pkt.Csrcs)
	if csrcNum > 15 {
		csrcNum = 15
	}
	h.CsrcCount = uint8(csrcNum)

	extLen := (len(pkt.ExtensionRaw) + 3) / 4 * 4
	hasExt := h.Extension == 1 || len(pkt.ExtensionRaw) > 0
	if hasExt {
		h.Extension = 1
	}

	var paddingSize int
	if h.Padding == 1 {
		paddingSize = int(pkt.PaddingSize)
	}

	total := RtpFixedHeaderLength + 4*int(h.CsrcCount) + len(pkt.Payload) + paddingSize
	if hasExt {
		total += RtpExtensionHeaderLength + extLen
	}

	out := make([]byte, total)
	h.PackTo(out)
	index := RtpFixedHeaderLength
	for i := 0; i < int(h.CsrcCount); i++ {
		bele.BePutUint32(out[index:], pkt.Csrcs[i])
		index += 4
	}
	if hasExt {
		bele.BePutUint16(out[index:], pkt.ExtensionProfile)
		bele.BePutUint16(out[index+2:], uint16(extLen/4))
		index += RtpExtensionHeaderLength
		copy(out[index:], pkt.ExtensionRaw)
		index += extLen
	}
	copy(out[index:], pkt.Payload)
	if paddingSize > 0 {
		out[total-1] = uint8(paddingSize)
	}
	return out
}

func ParseRtpHeader(b []byte) (h RtpHeader, err error) {
	if len(b) < RtpFixedHeaderLength {
		err = base.NewErrRtpRtcpShortBuffer(RtpFixedHeaderLength, len(b), "rtp header")
		return
	}

	h.Version = b[0] >> 6
	h.Padding = (b[0] >> 5) & 0x1
	h.Extension = (b[0] >> 4) & 0x1
	h.CsrcCount = b[0] & 0xF
	h.Mark = b[1] >> 7
	h.PacketType = b[1] & 0x7F
	h.Seq = bele.BeUint16(b[2:])
	h.Timestamp = bele.BeUint32(b[4:])
	h.Ssrc = bele.BeUint32(b[8:])
	return
}

// ParseRtpPacket 解析一个完整的rtp包
//
// 注意，返回值中的切片引用参数<b>的内存块，调用方在使用完返回值之前不能复用<b>
func ParseRtpPacket(b []byte) (pkt RtpPacket, err error) {
	pkt.Header, err = ParseRtpHeader(b)
	if err != nil {
		return
	}
	pkt.Raw = b

	index := RtpFixedHeaderLength
	if pkt.Header.CsrcCount > 0 {
		need := index + 4*int(pkt.Header.CsrcCount)
		if need > len(b) {
			err = base.NewErrRtpRtcpShortBuffer(need, len(b), "rtp csrc")
			return
		}
		pkt.Csrcs = make([]uint32, pkt.Header.CsrcCount)
		for i := range pkt.Csrcs {
			pkt.Csrcs[i] = bele.BeUint32(b[index:])
			index += 4
		}
	}

	if pkt.Header.Extension == 1 {
		if index+RtpExtensionHeaderLength > len(b) {
			err = base.NewErrRtpRtcpShortBuffer(index+RtpExtensionHeaderLength, len(b), "rtp extension header")
			return
		}
		pkt.ExtensionProfile = bele.BeUint16(b[index:])
		extLen := int(bele.BeUint16(b[index+2:])) * 4
		index += RtpExtensionHeaderLength
		if index+extLen > len(b) {
			err = base.NewErrRtpRtcpShortBuffer(index+extLen, len(b), "rtp extension")
			return
		}
		pkt.ExtensionRaw = b[index : index+extLen]
		if pkt.ExtensionProfile == RtpExtensionProfileOneByte {
			pkt.Extensions = ParseOneByteExtensions(pkt.ExtensionRaw)
		}
		index += extLen
	}

	end := len(b)
	if pkt.Header.Padding == 1 {
		if end <= index {
			err = base.NewErrRtpMalformed("padding flag set without padding")
			return
		}
		pkt.PaddingSize = b[end-1]
		end -= int(pkt.PaddingSize)
		if end < index {
			err = base.NewErrRtpMalformed(fmt.Sprintf("padding too large. padding=%d, remain=%d", pkt.PaddingSize, len(b)-index))
			return
		}
	}

	pkt.Payload = b[index:end]
	return
}
