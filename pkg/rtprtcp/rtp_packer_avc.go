// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtprtcp

import (
	"math/rand"

	"github.com/q191201771/naza/pkg/bele"
)

// PackAvcNal 将一个nal打包成一个或多个rtp payload，大于maxSize时使用FU-A切割
//
// pack逻辑
//
// 输入
// nri     [01, 02]
// nalType [03, 07]
//
// 输出
// nri     [01, 02]
// 28      [03, 07]    28是avc fua的nal type
// start   [10]
// end     [11]
// nalType [13, 17]
//
// @return out: 内存块为独立新申请
func PackAvcNal(nal []byte, maxSize int) (out [][]byte) {
	if len(nal) == 0 || maxSize <= 2 {
		return
	}

	// single
	if len(nal) <= maxSize {
		item := make([]byte, len(nal))
		copy(item, nal)
		out = append(out, item)
		return
	}

	// FU-A，跳过输入的nal type那个字节，使用FU-A自己的两个字节的头
	const headerSize = 2
	nalType := nal[0] & 0x1F
	nri := nal[0] & 0x60
	bpos := 1
	epos := len(nal)
	for bpos < epos {
		n := epos - bpos
		if n > maxSize-headerSize {
			n = maxSize - headerSize
		}
		item := make([]byte, headerSize+n)
		item[0] = NaluTypeAvcFua | nri
		item[1] = nalType
		if bpos == 1 {
			item[1] |= 0x80 // start
		}
		if bpos+n == epos {
			item[1] |= 0x40 // end
		}
		copy(item[headerSize:], nal[bpos:bpos+n])
		out = append(out, item)
		bpos += n
	}
	return
}

// PackAvcStapa 将多个nal聚合成一个STAP-A payload，调用方保证总大小不超过mtu
func PackAvcStapa(nals [][]byte) []byte {
	total := 1
	var nri uint8
	for _, nal := range nals {
		total += 2 + len(nal)
		if len(nal) > 0 && nal[0]&0x60 > nri {
			nri = nal[0] & 0x60
		}
	}
	out := make([]byte, total)
	out[0] = NaluTypeAvcStapa | nri
	index := 1
	for _, nal := range nals {
		bele.BePutUint16(out[index:], uint16(len(nal)))
		copy(out[index+2:], nal)
		index += 2 + len(nal)
	}
	return out
}

// RtpPackerAvc 给h264的nal分配seq和时间戳，产生完整的rtp包
type RtpPackerAvc struct {
	ssrc   uint32
	option RtpPackerOption

	seq uint16
}

type RtpPackerOption struct {
	MaxPayloadSize int
	PacketType     uint8
	FirstSeq       uint16 // 初始seq，如果不设置，则随机产生
}

var defaultRtpPackerOption = RtpPackerOption{
	MaxPayloadSize: 1200,
	PacketType:     RtpPacketTypeAvcDefault,
}

type ModRtpPackerOption func(option *RtpPackerOption)

func NewRtpPackerAvc(ssrc uint32, modOptions ...ModRtpPackerOption) *RtpPackerAvc {
	option := defaultRtpPackerOption
	option.FirstSeq = uint16(rand.Intn(65536))
	for _, fn := range modOptions {
		fn(&option)
	}
	return &RtpPackerAvc{
		ssrc:   ssrc,
		option: option,
		seq:    option.FirstSeq,
	}
}

// PackNals 同一帧的多个nal，最后一个rtp包设置mark位
//
// @param timestampMs: 毫秒，内部按90000的时钟频率转换
func (r *RtpPackerAvc) PackNals(nals [][]byte, timestampMs uint32) (out []RtpPacket) {
	var payloads [][]byte
	for _, nal := range nals {
		payloads = append(payloads, PackAvcNal(nal, r.option.MaxPayloadSize)...)
	}
	return r.PackPayloads(payloads, timestampMs)
}

// PackPayloads 已经是rtp payload格式的数据，比如 PackAvcStapa 的结果
func (r *RtpPackerAvc) PackPayloads(payloads [][]byte, timestampMs uint32) (out []RtpPacket) {
	ts := uint32(uint64(timestampMs) * RtpClockRateAvc / 1000)
	for i, payload := range payloads {
		h := MakeDefaultRtpHeader()
		if i == len(payloads)-1 {
			h.Mark = 1
		}
		h.PacketType = r.option.PacketType
		h.Seq = r.genSeq()
		h.Timestamp = ts
		h.Ssrc = r.ssrc
		out = append(out, MakeRtpPacket(h, payload))
	}
	return
}

func (r *RtpPackerAvc) genSeq() (ret uint16) {
	ret = r.seq
	r.seq++
	return
}
