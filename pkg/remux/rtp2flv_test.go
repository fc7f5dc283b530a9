// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package remux_test

import (
	"bytes"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/wosledon/rtpserver/pkg/avc"
	"github.com/wosledon/rtpserver/pkg/httpflv"
	"github.com/wosledon/rtpserver/pkg/remux"
	"github.com/wosledon/rtpserver/pkg/rtprtcp"
)

var (
	spsNal = []byte{0x67, 0x42, 0x00, 0x1E, 0xDA, 0x02, 0x80, 0xF6, 0x40}
	ppsNal = []byte{0x68, 0x00, 0xCE, 0x3C, 0x80}
	idrNal = []byte{0x65, 0x88, 0x84, 0x00, 0x33}
	pNal   = []byte{0x41, 0x9A, 0x02}
)

func readTags(t *testing.T, chunk []byte) []httpflv.Tag {
	rd := bytes.NewReader(chunk)
	if httpflv.IsFlvHeader(chunk) {
		_, err := httpflv.ReadFlvHeader(rd)
		assert.Equal(t, nil, err)
	}
	var tags []httpflv.Tag
	for rd.Len() > 0 {
		tag, err := httpflv.ReadTag(rd)
		assert.Equal(t, nil, err)
		tags = append(tags, tag)
	}
	return tags
}

func expectedInitSegment() []byte {
	return httpflv.PackAvcInitSegment(avc.BuildDecoderConfigurationRecord(spsNal[1:], ppsNal[1:]))
}

func frameNal(t *testing.T, chunk []byte) []byte {
	tags := readTags(t, chunk)
	assert.Equal(t, 1, len(tags))
	nals, err := avc.SplitNaluAvcc(tags[0].Payload()[httpflv.AvcTagBodyHeaderSize:])
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(nals))
	return nals[0]
}

func TestEndToEnd(t *testing.T) {
	r := remux.NewRtp2FlvRemuxer()
	assert.Equal(t, remux.StateAwaitingParams, r.State())

	stapa := rtprtcp.PackAvcStapa([][]byte{spsNal, ppsNal})
	out := r.FeedPayload(1000, stapa)
	assert.Equal(t, 1, len(out))
	assert.Equal(t, expectedInitSegment(), out[0])
	assert.Equal(t, remux.StateReady, r.State())
	assert.Equal(t, out[0], r.InitSegment())
	assert.Equal(t, spsNal[1:], r.Sps())
	assert.Equal(t, ppsNal[1:], r.Pps())

	// init segment里包含sps和pps
	tags := readTags(t, out[0])
	assert.Equal(t, 1, len(tags))
	assert.Equal(t, true, tags[0].IsAvcKeySeqHeader())
	sps, pps, err := avc.ParseDecoderConfigurationRecord(tags[0].Payload()[httpflv.AvcTagBodyHeaderSize:])
	assert.Equal(t, nil, err)
	assert.Equal(t, spsNal[1:], sps)
	assert.Equal(t, ppsNal[1:], pps)

	out = r.FeedPayload(1000, idrNal)
	assert.Equal(t, 1, len(out))
	tags = readTags(t, out[0])
	assert.Equal(t, 1, len(tags))
	assert.Equal(t, true, tags[0].IsAvcKeyNalu())
	payload := tags[0].Payload()
	assert.Equal(t, uint8(1), payload[0]>>4)
	assert.Equal(t, httpflv.AvcPacketTypeNalu, payload[1])
	assert.Equal(t, []byte{0, 0, 0}, payload[2:5])
	assert.Equal(t, idrNal, frameNal(t, out[0]))
}

func TestFeedRtpPacket(t *testing.T) {
	r := remux.NewRtp2FlvRemuxer()
	h := rtprtcp.MakeDefaultRtpHeader()
	h.Timestamp = 3000
	out := r.FeedRtpPacket(rtprtcp.MakeRtpPacket(h, rtprtcp.PackAvcStapa([][]byte{spsNal, ppsNal})))
	assert.Equal(t, 1, len(out))

	pkt, err := rtprtcp.ParseRtpPacket(rtprtcp.PackRtpPacket(rtprtcp.MakeRtpPacket(h, pNal)))
	assert.Equal(t, nil, err)
	out = r.FeedRtpPacket(pkt)
	assert.Equal(t, 1, len(out))
	tags := readTags(t, out[0])
	assert.Equal(t, false, tags[0].IsAvcKeyNalu())
	assert.Equal(t, httpflv.AvcInterFrame, tags[0].Payload()[0])
}

func TestFuaReassemble(t *testing.T) {
	r := remux.NewRtp2FlvRemuxer()
	r.FeedPayload(0, spsNal)
	r.FeedPayload(0, ppsNal)

	out := r.FeedPayload(0, []byte{0x1C, 0x85, 0x01, 0x02, 0x03})
	assert.Equal(t, 0, len(out))
	out = r.FeedPayload(0, []byte{0x1C, 0x45, 0x04, 0x05})
	assert.Equal(t, 1, len(out))
	nal := frameNal(t, out[0])
	assert.Equal(t, uint8((0x1C&0xE0)|0x05), nal[0])
	assert.Equal(t, []byte{0x05, 0x01, 0x02, 0x03, 0x04, 0x05}, nal)
	assert.Equal(t, true, readTags(t, out[0])[0].IsAvcKeyNalu())

	// 中间分片
	r.FeedPayload(0, []byte{0x7C, 0x81, 0xAA})
	r.FeedPayload(0, []byte{0x7C, 0x01, 0xBB})
	out = r.FeedPayload(0, []byte{0x7C, 0x41, 0xCC})
	assert.Equal(t, []byte{0x61, 0xAA, 0xBB, 0xCC}, frameNal(t, out[0]))

	// 没有start的end分片
	out = r.FeedPayload(0, []byte{0x7C, 0x41, 0xCC})
	assert.Equal(t, 0, len(out))

	// start之后又来start，丢弃之前的数据
	r.FeedPayload(0, []byte{0x7C, 0x85, 0x11})
	r.FeedPayload(0, []byte{0x7C, 0x85, 0x22})
	out = r.FeedPayload(0, []byte{0x7C, 0x45, 0x33})
	assert.Equal(t, []byte{0x65, 0x22, 0x33}, frameNal(t, out[0]))

	// 长度不足2的FU-A
	out = r.FeedPayload(0, []byte{0x7C})
	assert.Equal(t, 0, len(out))

	// start和end在同一个分片
	out = r.FeedPayload(0, []byte{0x7C, 0xC5, 0x44})
	assert.Equal(t, []byte{0x65, 0x44}, frameNal(t, out[0]))
}

func TestFuaMaxSize(t *testing.T) {
	r := remux.NewRtp2FlvRemuxer(func(option *remux.Rtp2FlvRemuxerOption) {
		option.FuaMaxSize = 8
	})
	r.FeedPayload(0, spsNal)
	r.FeedPayload(0, ppsNal)

	r.FeedPayload(0, []byte{0x7C, 0x85, 1, 2, 3, 4})
	out := r.FeedPayload(0, []byte{0x7C, 0x05, 5, 6, 7, 8})
	assert.Equal(t, 0, len(out))
	assert.Equal(t, 1, r.FuaDropCount())
	// 已丢弃，end分片不再输出
	out = r.FeedPayload(0, []byte{0x7C, 0x45, 9})
	assert.Equal(t, 0, len(out))

	// 之后新的start正常重组
	r.FeedPayload(0, []byte{0x7C, 0x85, 1})
	out = r.FeedPayload(0, []byte{0x7C, 0x45, 2})
	assert.Equal(t, []byte{0x65, 1, 2}, frameNal(t, out[0]))
}

func TestStapaOverrun(t *testing.T) {
	r := remux.NewRtp2FlvRemuxer()
	r.FeedPayload(0, spsNal)
	r.FeedPayload(0, ppsNal)

	stapa := rtprtcp.PackAvcStapa([][]byte{pNal, idrNal})
	// 第二个nal声明的长度超过剩余数据
	stapa = stapa[:len(stapa)-1]
	out := r.FeedPayload(0, stapa)
	assert.Equal(t, 1, len(out))
	assert.Equal(t, pNal, frameNal(t, out[0]))

	// 长度为0的nal跳过
	out = r.FeedPayload(0, []byte{0x18, 0x00, 0x00, 0x00, 0x02, 0x41, 0x01, 0x00})
	assert.Equal(t, 1, len(out))
	assert.Equal(t, []byte{0x41, 0x01}, frameNal(t, out[0]))
}

func TestPpsThenSps(t *testing.T) {
	r := remux.NewRtp2FlvRemuxer()
	out := r.FeedPayload(0, ppsNal)
	assert.Equal(t, 0, len(out))

	// pps和sps之间的帧
	out = r.FeedPayload(0, idrNal)
	assert.Equal(t, 0, len(out))
	out = r.FeedPayload(0, pNal)
	assert.Equal(t, 0, len(out))
	assert.Equal(t, 2, r.PendingNum())
	assert.Equal(t, remux.StateAwaitingParams, r.State())

	out = r.FeedPayload(0, spsNal)
	assert.Equal(t, 3, len(out))
	assert.Equal(t, expectedInitSegment(), out[0])
	assert.Equal(t, idrNal, frameNal(t, out[1]))
	assert.Equal(t, pNal, frameNal(t, out[2]))
	assert.Equal(t, 0, r.PendingNum())

	// init segment只生成一次
	out = r.FeedPayload(0, spsNal)
	assert.Equal(t, 0, len(out))
	out = r.FeedPayload(0, ppsNal)
	assert.Equal(t, 0, len(out))
}

func TestUnsupportedPps(t *testing.T) {
	r := remux.NewRtp2FlvRemuxer()
	r.FeedPayload(0, spsNal)
	out := r.FeedPayload(0, []byte{0x68, 0x01, 0xCE})
	assert.Equal(t, 0, len(out))
	out = r.FeedPayload(0, []byte{0x68})
	assert.Equal(t, 0, len(out))
	assert.Equal(t, 2, r.UnsupportedPpsCount())

	out = r.FeedPayload(0, idrNal)
	assert.Equal(t, 0, len(out))
	assert.Equal(t, remux.StateAwaitingParams, r.State())
	assert.Equal(t, 1, r.PendingNum())
	assert.Equal(t, true, r.InitSegment() == nil)
}

func TestTimestamp(t *testing.T) {
	r := remux.NewRtp2FlvRemuxer()
	var t0 uint32 = 0xFFFF0000
	r.FeedPayload(t0, rtprtcp.PackAvcStapa([][]byte{spsNal, ppsNal}))

	out := r.FeedPayload(t0, idrNal)
	assert.Equal(t, uint32(0), readTags(t, out[0])[0].Header.Timestamp)

	// 跨越32位回绕
	out = r.FeedPayload(t0+90000, pNal)
	assert.Equal(t, uint32(1000), readTags(t, out[0])[0].Header.Timestamp)

	out = r.FeedPayload(t0+3600, pNal)
	assert.Equal(t, uint32(40), readTags(t, out[0])[0].Header.Timestamp)

	// 空payload
	assert.Equal(t, 0, len(r.FeedPayload(t0, nil)))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "AwaitingParams", remux.StateAwaitingParams.String())
	assert.Equal(t, "Ready", remux.StateReady.String())
}
