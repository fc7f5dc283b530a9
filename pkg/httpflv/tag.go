// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package httpflv

import (
	"bytes"
	"fmt"
	"io"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/wosledon/rtpserver/pkg/base"
)

// Tag header:
//
//  0               1               2               3
//  0 1 2 3 4 5 6 7 0 1 2 3 4 5 6 7 0 1 2 3 4 5 6 7 0 1 2 3 4 5 6 7
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |     type      |                  data size                    |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                 timestamp                     | timestamp ext |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                 stream id                     |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+

type TagHeader struct {
	Type      uint8  // type
	DataSize  uint32 // body大小，不包含 header 和 prev tag size 字段
	Timestamp uint32 // 绝对时间戳，单位毫秒
	StreamId  uint32 // always 0
}

type Tag struct {
	Header TagHeader
	Raw    []byte // 结构为 (11字节的 tag header) + (body) + (4字节的 prev tag size)
}

func (tag *Tag) Payload() []byte {
	return tag.Raw[TagHeaderSize : len(tag.Raw)-PrevTagSizeFieldSize]
}

func (tag *Tag) IsAvc() bool {
	return tag.Header.Type == TagTypeVideo && tag.Header.DataSize > 0 && tag.Raw[TagHeaderSize]&0xF == CodecIdAvc
}

func (tag *Tag) IsAvcKeySeqHeader() bool {
	return tag.Header.Type == TagTypeVideo && tag.Header.DataSize >= 2 &&
		tag.Raw[TagHeaderSize] == AvcKeyFrame && tag.Raw[TagHeaderSize+1] == AvcPacketTypeSeqHeader
}

func (tag *Tag) IsAvcKeyNalu() bool {
	return tag.Header.Type == TagTypeVideo && tag.Header.DataSize >= 2 &&
		tag.Raw[TagHeaderSize] == AvcKeyFrame && tag.Raw[TagHeaderSize+1] == AvcPacketTypeNalu
}

func (tag *Tag) IsAvcNalu() bool {
	return tag.IsAvc() && tag.Header.DataSize >= 2 && tag.Raw[TagHeaderSize+1] == AvcPacketTypeNalu
}

// PackFlvHeader 9字节flv文件头加上4字节PreviousTagSize0
func PackFlvHeader(flags uint8) []byte {
	out := make([]byte, FlvHeaderWithPrevTagSize)
	copy(out, FlvHeader)
	out[4] = flags
	return out
}

// IsFlvHeader <b>是否以flv文件头开始
func IsFlvHeader(b []byte) bool {
	return len(b) >= FlvHeaderWithPrevTagSize && b[0] == 'F' && b[1] == 'L' && b[2] == 'V'
}

// PackHttpflvTag 打包一个序列化后的 tag 二进制buffer，包含 tag header，body，prev tag size
func PackHttpflvTag(t uint8, timestamp uint32, in []byte) []byte {
	out := make([]byte, TagHeaderSize+len(in)+PrevTagSizeFieldSize)
	out[0] = t
	bele.BePutUint24(out[1:], uint32(len(in)))
	bele.BePutUint24(out[4:], timestamp&0xFFFFFF)
	out[7] = uint8(timestamp >> 24)
	out[8] = 0
	out[9] = 0
	out[10] = 0
	copy(out[TagHeaderSize:], in)
	bele.BePutUint32(out[TagHeaderSize+len(in):], uint32(TagHeaderSize+len(in)))
	return out
}

// PackAvcSeqHeaderTag 时间戳固定为0
//
// @param dcr: AVCDecoderConfigurationRecord
func PackAvcSeqHeaderTag(dcr []byte) []byte {
	return packAvcTag(AvcKeyFrame, AvcPacketTypeSeqHeader, 0, dcr)
}

// PackAvcNaluTag composition time固定为0
//
// @param avcc: 4字节长度前缀格式的nal
func PackAvcNaluTag(timestamp uint32, isKey bool, avcc []byte) []byte {
	frameType := AvcInterFrame
	if isKey {
		frameType = AvcKeyFrame
	}
	return packAvcTag(frameType, AvcPacketTypeNalu, timestamp, avcc)
}

// PackAvcInitSegment flv文件头 + PreviousTagSize0 + seq header tag
func PackAvcInitSegment(dcr []byte) []byte {
	tag := PackAvcSeqHeaderTag(dcr)
	out := make([]byte, FlvHeaderWithPrevTagSize+len(tag))
	copy(out, FlvHeader)
	copy(out[FlvHeaderWithPrevTagSize:], tag)
	return out
}

// PackSingleTagFlv 将<payload>原样放入一个tag，并在前面加上flv文件头，时间戳为0
//
// 无状态，不做任何解析和重组
func PackSingleTagFlv(payload []byte, isAudio bool) []byte {
	flags, t := FlvHeaderFlagVideo, TagTypeVideo
	if isAudio {
		flags, t = FlvHeaderFlagAudio, TagTypeAudio
	}
	tag := PackHttpflvTag(t, 0, payload)
	out := make([]byte, FlvHeaderWithPrevTagSize+len(tag))
	copy(out, PackFlvHeader(flags))
	copy(out[FlvHeaderWithPrevTagSize:], tag)
	return out
}

func ParseTagHeader(rawHeader []byte) (h TagHeader, err error) {
	if len(rawHeader) < TagHeaderSize {
		err = fmt.Errorf("%w. tag header. len=%d", base.ErrShortBuffer, len(rawHeader))
		return
	}
	h.Type = rawHeader[0]
	h.DataSize = bele.BeUint24(rawHeader[1:])
	h.Timestamp = (uint32(rawHeader[7]) << 24) + bele.BeUint24(rawHeader[4:])
	h.StreamId = bele.BeUint24(rawHeader[8:])
	return
}

// ReadTag 从<rd>读取一个完整的tag，包含prev tag size
func ReadTag(rd io.Reader) (tag Tag, err error) {
	rawHeader := make([]byte, TagHeaderSize)
	if _, err = io.ReadFull(rd, rawHeader); err != nil {
		return
	}
	header, err := ParseTagHeader(rawHeader)
	if err != nil {
		return
	}

	needed := int(header.DataSize) + PrevTagSizeFieldSize
	tag.Header = header
	tag.Raw = make([]byte, TagHeaderSize+needed)
	copy(tag.Raw, rawHeader)

	if _, err = io.ReadFull(rd, tag.Raw[TagHeaderSize:]); err != nil {
		return
	}
	if prev := bele.BeUint32(tag.Raw[TagHeaderSize+int(header.DataSize):]); prev != uint32(TagHeaderSize)+header.DataSize {
		err = fmt.Errorf("%w. invalid prev tag size. expected=%d, actual=%d", base.ErrHttpflv, TagHeaderSize+header.DataSize, prev)
	}
	return
}

// ReadFlvHeader 读取并校验13字节的flv文件头
func ReadFlvHeader(rd io.Reader) (flags uint8, err error) {
	b := make([]byte, FlvHeaderWithPrevTagSize)
	if _, err = io.ReadFull(rd, b); err != nil {
		return
	}
	if !bytes.Equal(b[:3], FlvHeader[:3]) {
		err = fmt.Errorf("%w. invalid flv signature. b=%v", base.ErrHttpflv, b[:3])
		return
	}
	return b[4], nil
}

func packAvcTag(frameType, packetType uint8, timestamp uint32, in []byte) []byte {
	body := make([]byte, AvcTagBodyHeaderSize+len(in))
	body[0] = frameType
	body[1] = packetType
	// body[2:5] composition time
	copy(body[AvcTagBodyHeaderSize:], in)
	return PackHttpflvTag(TagTypeVideo, timestamp, body)
}
