// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtprtcp

import "strings"

// ---------------------------------------
// rfc8285 4.2 One-Byte Header
// ---------------------------------------
//
//  0                   1                   2                   3
//  0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |       0xBE    |    0xDE       |           length=3            |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |  ID   | L=0   |     data      |  ID   |  L=1  |   data...
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//       ...data   |    0 (pad)    |    0 (pad)    |  ID   | L=3   |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                          data                                 |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+

const (
	ExtensionIdPadding  = 0
	ExtensionIdReserved = 15

	ExtensionNameAudioLevel  = "urn:ietf:params:rtp-hdrext:ssrc-audio-level"
	ExtensionNameAbsSendTime = "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time"
	ExtensionNameMid         = "urn:ietf:params:rtp-hdrext:sdes:mid"
)

// RtpExtension one-byte扩展头中的一个元素，id范围[1, 14]，Data长度范围[1, 16]
type RtpExtension struct {
	Id   uint8
	Data []byte
}

// ParseOneByteExtensions
//
// id为0是padding，跳过1个字节；id为15停止解析；元素长度超出扩展块时停止解析，已经解析的元素保留
//
// @param b: 扩展块，不包含profile和length
func ParseOneByteExtensions(b []byte) (exts []RtpExtension) {
	for i := 0; i < len(b); {
		id := b[i] >> 4
		l := int(b[i]&0x0F) + 1
		if id == ExtensionIdPadding {
			i++
			continue
		}
		if id == ExtensionIdReserved {
			break
		}
		i++
		if i+l > len(b) {
			break
		}
		exts = append(exts, RtpExtension{Id: id, Data: b[i : i+l]})
		i += l
	}
	return
}

// PackOneByteExtensions ParseOneByteExtensions 的逆操作，结果补齐到4字节的整数倍
//
// id不在[1, 14]或者数据长度不在[1, 16]的元素会被忽略
func PackOneByteExtensions(exts []RtpExtension) []byte {
	var out []byte
	for _, ext := range exts {
		if ext.Id == ExtensionIdPadding || ext.Id >= ExtensionIdReserved || len(ext.Data) == 0 || len(ext.Data) > 16 {
			continue
		}
		out = append(out, ext.Id<<4|uint8(len(ext.Data)-1))
		out = append(out, ext.Data...)
	}
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	return out
}

// GetExtension 获取id对应的扩展数据，不存在时ok为false
func (pkt *RtpPacket) GetExtension(id uint8) (data []byte, ok bool) {
	for _, ext := range pkt.Extensions {
		if ext.Id == id {
			return ext.Data, true
		}
	}
	return nil, false
}

// GetExtensionByName 通过id到名字的映射查找扩展，名字比较时忽略大小写
//
// @param mapping: 一般来自sdp中的extmap
func (pkt *RtpPacket) GetExtensionByName(mapping map[uint8]string, name string) (data []byte, ok bool) {
	id, ok := findExtensionId(mapping, name)
	if !ok {
		return nil, false
	}
	return pkt.GetExtension(id)
}

// ParseAudioLevel rfc6464，最高位为voice activity，低7位为-dBov
func (pkt *RtpPacket) ParseAudioLevel(id uint8) (voice bool, level int, ok bool) {
	data, ok := pkt.GetExtension(id)
	if !ok || len(data) == 0 {
		return false, 0, false
	}
	return data[0]&0x80 != 0, int(data[0] & 0x7F), true
}

func (pkt *RtpPacket) ParseMid(id uint8) (string, bool) {
	data, ok := pkt.GetExtension(id)
	if !ok {
		return "", false
	}
	return string(data), true
}

func (pkt *RtpPacket) ParseMidByName(mapping map[uint8]string, name string) (string, bool) {
	data, ok := pkt.GetExtensionByName(mapping, name)
	if !ok {
		return "", false
	}
	return string(data), true
}

// ParseAbsSendTimeRaw 24位的原始值
func (pkt *RtpPacket) ParseAbsSendTimeRaw(id uint8) (uint32, bool) {
	data, ok := pkt.GetExtension(id)
	if !ok {
		return 0, false
	}
	return absSendTimeRaw(data)
}

// ParseAbsSendTimeSeconds 原始值除以65536
func (pkt *RtpPacket) ParseAbsSendTimeSeconds(id uint8) (float64, bool) {
	raw, ok := pkt.ParseAbsSendTimeRaw(id)
	if !ok {
		return 0, false
	}
	return float64(raw) / 65536.0, true
}

func (pkt *RtpPacket) ParseAbsSendTimeSecondsByName(mapping map[uint8]string, name string) (float64, bool) {
	data, ok := pkt.GetExtensionByName(mapping, name)
	if !ok {
		return 0, false
	}
	raw, ok := absSendTimeRaw(data)
	if !ok {
		return 0, false
	}
	return float64(raw) / 65536.0, true
}

func absSendTimeRaw(data []byte) (uint32, bool) {
	if len(data) < 3 {
		return 0, false
	}
	return uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2]), true
}

// 多个id映射到同一个名字时，取最小的id
func findExtensionId(mapping map[uint8]string, name string) (uint8, bool) {
	var (
		ret   uint8
		found bool
	)
	for id, n := range mapping {
		if !strings.EqualFold(n, name) {
			continue
		}
		if !found || id < ret {
			ret = id
			found = true
		}
	}
	return ret, found
}
