// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package avc

import (
	"fmt"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/wosledon/rtpserver/pkg/base"
)

// Annex B:
//   keywords: MPEG-2 transport stream, ElementaryStream(ES),
//   nalu with start code.
//   e.g. ts
//
// AVCC:
//   keywords: MPEG-4, extradata, sequence header, AVCDecoderConfigurationRecord
//   nalu with length prefix.
//   e.g. rtmp, flv

var NaluStartCode3 = []byte{0x0, 0x0, 0x1}
var NaluStartCode4 = []byte{0x0, 0x0, 0x0, 0x1}

var NaluTypeMapping = map[uint8]string{
	1: "SLICE",
	5: "IDR",
	6: "SEI",
	7: "SPS",
	8: "PPS",
	9: "AUD",
}

const (
	NaluTypeSlice    uint8 = 1
	NaluTypeIdrSlice uint8 = 5
	NaluTypeSei      uint8 = 6
	NaluTypeSps      uint8 = 7
	NaluTypePps      uint8 = 8
	NaluTypeAud      uint8 = 9
)

// DecoderConfigurationRecordMinLength 不包含sps和pps数据时的长度
const DecoderConfigurationRecordMinLength = 11

func ParseNaluType(v uint8) uint8 {
	return v & 0x1f
}

func ParseNaluTypeReadable(v uint8) string {
	ret, ok := NaluTypeMapping[ParseNaluType(v)]
	if !ok {
		return "unknown"
	}
	return ret
}

// BuildDecoderConfigurationRecord
//
// H.264-AVC-ISO_IEC_14496-15.pdf
// 5.2.4 Decoder configuration information
//
// profile、compatibility、level取自sps的前3个字节，sps不足3字节时填0。
// 只支持1个sps和1个pps，nalu长度固定使用4字节。
//
// @param sps: 调用方决定是否包含nal header
func BuildDecoderConfigurationRecord(sps, pps []byte) []byte {
	out := make([]byte, DecoderConfigurationRecordMinLength+len(sps)+len(pps))
	out[0] = 0x01 // configurationVersion
	if len(sps) >= 3 {
		out[1] = sps[0] // AVCProfileIndication
		out[2] = sps[1] // profile_compatibility
		out[3] = sps[2] // AVCLevelIndication
	}
	out[4] = 0xFF // reserved '111111'b + lengthSizeMinusOne(3)
	out[5] = 0xE1 // reserved '111'b + numOfSequenceParameterSets(1)
	bele.BePutUint16(out[6:], uint16(len(sps)))
	index := 8
	copy(out[index:], sps)
	index += len(sps)
	out[index] = 0x01 // numOfPictureParameterSets
	bele.BePutUint16(out[index+1:], uint16(len(pps)))
	index += 3
	copy(out[index:], pps)
	return out
}

// ParseDecoderConfigurationRecord BuildDecoderConfigurationRecord 的逆操作，多个sps或pps时只取第一个
//
// 注意，返回的sps和pps引用参数<b>的内存块
func ParseDecoderConfigurationRecord(b []byte) (sps, pps []byte, err error) {
	if len(b) < DecoderConfigurationRecordMinLength {
		err = fmt.Errorf("%w. len=%d", base.ErrShortBuffer, len(b))
		return
	}
	if b[0] != 0x01 {
		err = fmt.Errorf("%w. invalid configurationVersion. v=%d", base.ErrAvc, b[0])
		return
	}

	index := 5
	numOfSps := int(b[index] & 0x1F)
	index++
	for i := 0; i < numOfSps; i++ {
		if index+2 > len(b) {
			err = fmt.Errorf("%w. sps length", base.ErrShortBuffer)
			return
		}
		l := int(bele.BeUint16(b[index:]))
		index += 2
		if index+l > len(b) {
			err = fmt.Errorf("%w. sps", base.ErrShortBuffer)
			return
		}
		if i == 0 {
			sps = b[index : index+l]
		}
		index += l
	}

	if index+1 > len(b) {
		err = fmt.Errorf("%w. numOfPps", base.ErrShortBuffer)
		return
	}
	numOfPps := int(b[index])
	index++
	for i := 0; i < numOfPps; i++ {
		if index+2 > len(b) {
			err = fmt.Errorf("%w. pps length", base.ErrShortBuffer)
			return
		}
		l := int(bele.BeUint16(b[index:]))
		index += 2
		if index+l > len(b) {
			err = fmt.Errorf("%w. pps", base.ErrShortBuffer)
			return
		}
		if i == 0 {
			pps = b[index : index+l]
		}
		index += l
	}
	return
}

// AvccLength 1个nal转换成AVCC格式后的长度
func AvccLength(nal []byte) int {
	return 4 + len(nal)
}

// PackAvcc 将nal转换成4字节长度前缀的AVCC格式，写入<out>，调用方保证<out>长度足够
func PackAvcc(out []byte, nal []byte) int {
	bele.BePutUint32(out, uint32(len(nal)))
	copy(out[4:], nal)
	return 4 + len(nal)
}

// SplitNaluAvcc 切割AVCC格式的数据
//
// 注意，返回的nal引用参数<b>的内存块
func SplitNaluAvcc(b []byte) (nals [][]byte, err error) {
	for i := 0; i < len(b); {
		if i+4 > len(b) {
			return nil, fmt.Errorf("%w. avcc length. pos=%d, len=%d", base.ErrShortBuffer, i, len(b))
		}
		l := int(bele.BeUint32(b[i:]))
		i += 4
		if i+l > len(b) {
			return nil, fmt.Errorf("%w. avcc nal. pos=%d, nal len=%d, len=%d", base.ErrShortBuffer, i, l, len(b))
		}
		nals = append(nals, b[i:i+l])
		i += l
	}
	return
}

// SplitNaluAnnexb 切割Annex B格式的数据，起始码可以是3字节或者4字节
//
// 注意，返回的nal引用参数<b>的内存块
func SplitNaluAnnexb(b []byte) (nals [][]byte, err error) {
	start, scLen := findStartCode(b, 0)
	if start == -1 {
		return nil, fmt.Errorf("%w. start code not found", base.ErrAvc)
	}
	for {
		begin := start + scLen
		next, nextScLen := findStartCode(b, begin)
		if next == -1 {
			if begin < len(b) {
				nals = append(nals, b[begin:])
			}
			return
		}
		if next > begin {
			nals = append(nals, b[begin:next])
		}
		start, scLen = next, nextScLen
	}
}

// IterateNaluAnnexb 遍历Annex B格式的数据，回调中的nal引用参数<b>的内存块
func IterateNaluAnnexb(b []byte, handler func(nal []byte)) error {
	nals, err := SplitNaluAnnexb(b)
	if err != nil {
		return err
	}
	for _, nal := range nals {
		handler(nal)
	}
	return nil
}

// @return 起始码位置以及起始码长度，没找到时位置为-1
func findStartCode(b []byte, offset int) (int, int) {
	for i := offset; i+3 <= len(b); i++ {
		if b[i] != 0 || b[i+1] != 0 {
			continue
		}
		if b[i+2] == 1 {
			if i > offset && b[i-1] == 0 {
				return i - 1, 4
			}
			return i, 3
		}
	}
	return -1, 0
}
