// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package remux

import (
	"encoding/hex"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabytes"
	"github.com/wosledon/rtpserver/pkg/avc"
	"github.com/wosledon/rtpserver/pkg/base"
	"github.com/wosledon/rtpserver/pkg/httpflv"
	"github.com/wosledon/rtpserver/pkg/rtprtcp"
)

type Rtp2FlvRemuxerState int

const (
	// StateAwaitingParams 还没有同时拿到sps和pps，视频帧缓存在pending中
	StateAwaitingParams Rtp2FlvRemuxerState = iota

	// StateReady init segment已经生成，视频帧直接输出
	StateReady
)

func (s Rtp2FlvRemuxerState) String() string {
	switch s {
	case StateAwaitingParams:
		return "AwaitingParams"
	case StateReady:
		return "Ready"
	}
	return "unknown"
}

type Rtp2FlvRemuxerOption struct {
	// FuaMaxSize FU-A重组缓存的上限，超过后丢弃正在重组的nal，单位字节
	FuaMaxSize int
}

var defaultRtp2FlvRemuxerOption = Rtp2FlvRemuxerOption{
	FuaMaxSize: 2 * 1024 * 1024,
}

type ModRtp2FlvRemuxerOption func(option *Rtp2FlvRemuxerOption)

// Rtp2FlvRemuxer 将一路H264 rtp流转换为flv
//
// 输出的每个元素是一块独立的flv数据：init segment（flv文件头 + seq header tag），或者一个视频tag，
// tag都包含4字节的PreviousTagSize。
//
// 非协程安全，由调用方保证同一个对象的调用是串行的。
type Rtp2FlvRemuxer struct {
	uniqueKey string
	option    Rtp2FlvRemuxerOption

	state Rtp2FlvRemuxerState

	sps         []byte // 不包含1字节nal header
	pps         []byte // 不包含1字节nal header
	initSegment []byte
	pending     [][]byte

	fuBuf    []byte
	fuActive bool

	hasBaseTs bool
	baseTs    uint32

	fuaDropCount        int
	unsupportedPpsCount int

	debugLogMaxCount int
}

func NewRtp2FlvRemuxer(modOptions ...ModRtp2FlvRemuxerOption) *Rtp2FlvRemuxer {
	option := defaultRtp2FlvRemuxerOption
	for _, fn := range modOptions {
		fn(&option)
	}
	return &Rtp2FlvRemuxer{
		uniqueKey:        base.GenUkRtp2FlvRemuxer(),
		option:           option,
		state:            StateAwaitingParams,
		debugLogMaxCount: base.RtpDebugDumpPacketNum,
	}
}

// FeedRtpPacket
//
// 返回的内存块由调用方持有，内部不再使用。
//
// @param pkt: 函数调用结束后，内部不持有<pkt>的内存块
func (r *Rtp2FlvRemuxer) FeedRtpPacket(pkt rtprtcp.RtpPacket) [][]byte {
	return r.FeedPayload(pkt.Header.Timestamp, pkt.Payload)
}

// FeedPayload 同 FeedRtpPacket，直接传入rtp时间戳和payload
func (r *Rtp2FlvRemuxer) FeedPayload(rtpTimestamp uint32, payload []byte) (out [][]byte) {
	if len(payload) == 0 {
		return nil
	}

	ts := r.flvTimestamp(rtpTimestamp)

	if r.debugLogMaxCount > 0 {
		r.debugLogMaxCount--
		Log.Debugf("[%s] feed payload. rtp ts=%d, flv ts=%d, len=%d, head=%s", r.uniqueKey, rtpTimestamp, ts, len(payload),
			hexHead(payload))
	}

	outerType := avc.ParseNaluType(payload[0])
	switch outerType {
	case rtprtcp.NaluTypeAvcStapa:
		// 1字节STAP-A header, 然后是多个 (2字节长度 + nal)
		index := 1
		for index+2 <= len(payload) {
			size := int(bele.BeUint16(payload[index:]))
			index += 2
			if size == 0 {
				continue
			}
			if index+size > len(payload) {
				Log.Warnf("[%s] invalid stap-a packet. size=%d, remain=%d", r.uniqueKey, size, len(payload)-index)
				break
			}
			out = r.processNal(payload[index:index+size], ts, out)
			index += size
		}
	case rtprtcp.NaluTypeAvcFua:
		if nal := r.feedFua(payload); nal != nil {
			out = r.processNal(nal, ts, out)
		}
	default:
		out = r.processNal(payload, ts, out)
	}
	return out
}

// InitSegment 还没有生成时返回nil
func (r *Rtp2FlvRemuxer) InitSegment() []byte {
	return r.initSegment
}

func (r *Rtp2FlvRemuxer) State() Rtp2FlvRemuxerState {
	return r.state
}

func (r *Rtp2FlvRemuxer) UniqueKey() string {
	return r.uniqueKey
}

// Sps 不包含nal header
func (r *Rtp2FlvRemuxer) Sps() []byte {
	return r.sps
}

// Pps 不包含nal header
func (r *Rtp2FlvRemuxer) Pps() []byte {
	return r.pps
}

// PendingNum 等待init segment的视频tag数量
func (r *Rtp2FlvRemuxer) PendingNum() int {
	return len(r.pending)
}

// FuaDropCount 因超过上限而丢弃的FU-A重组次数
func (r *Rtp2FlvRemuxer) FuaDropCount() int {
	return r.fuaDropCount
}

// UnsupportedPpsCount 因pps id不为0而忽略的pps数量
func (r *Rtp2FlvRemuxer) UnsupportedPpsCount() int {
	return r.unsupportedPpsCount
}

// ---------------------------------------------------------------------------------------------------------------------

// @return 毫秒，第一次调用时记录基准时间戳并返回0
func (r *Rtp2FlvRemuxer) flvTimestamp(rtpTimestamp uint32) uint32 {
	if !r.hasBaseTs {
		r.hasBaseTs = true
		r.baseTs = rtpTimestamp
		return 0
	}
	return uint32(uint64(rtpTimestamp-r.baseTs) * 1000 / rtprtcp.RtpClockRateAvc)
}

// feedFua
//
// FU indicator(1) + FU header(1) + fragment
//
// FU header: |S|E|R|  Type   |
//
// @return 重组完成时返回完整的nal，否则返回nil
func (r *Rtp2FlvRemuxer) feedFua(payload []byte) []byte {
	if len(payload) < 2 {
		return nil
	}
	fuIndicator := payload[0]
	fuHeader := payload[1]
	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0

	if start {
		if r.fuActive {
			Log.Debugf("[%s] fu-a start before end, discard stale. len=%d", r.uniqueKey, len(r.fuBuf))
		}
		r.fuBuf = make([]byte, 0, len(payload)-1)
		r.fuBuf = append(r.fuBuf, (fuIndicator&0xE0)|(fuHeader&0x1F))
		r.fuBuf = append(r.fuBuf, payload[2:]...)
		r.fuActive = true
	} else if r.fuActive {
		r.fuBuf = append(r.fuBuf, payload[2:]...)
	} else {
		return nil
	}

	if r.option.FuaMaxSize > 0 && len(r.fuBuf) > r.option.FuaMaxSize {
		Log.Warnf("[%s] fu-a accumulation too large, discard. len=%d, max=%d", r.uniqueKey, len(r.fuBuf), r.option.FuaMaxSize)
		r.resetFua()
		r.fuaDropCount++
		return nil
	}

	if end {
		nal := r.fuBuf
		r.resetFua()
		return nal
	}
	return nil
}

func (r *Rtp2FlvRemuxer) resetFua() {
	r.fuBuf = nil
	r.fuActive = false
}

func (r *Rtp2FlvRemuxer) processNal(nal []byte, ts uint32, out [][]byte) [][]byte {
	switch avc.ParseNaluType(nal[0]) {
	case avc.NaluTypeSps:
		return append(out, r.onSps(nal)...)
	case avc.NaluTypePps:
		return append(out, r.onPps(nal)...)
	}
	return append(out, r.onFrame(nal, ts)...)
}

// onSps 保存sps，如果pps已经存在并且还没有生成init segment，则生成
func (r *Rtp2FlvRemuxer) onSps(nal []byte) [][]byte {
	r.sps = cloneBytes(nal[1:])
	if r.pps != nil && r.state == StateAwaitingParams {
		return r.transitToReady()
	}
	return nil
}

// onPps 只支持id为0的pps
func (r *Rtp2FlvRemuxer) onPps(nal []byte) [][]byte {
	if len(nal) < 2 || nal[1] != 0 {
		r.unsupportedPpsCount++
		var id byte
		if len(nal) >= 2 {
			id = nal[1]
		}
		Log.Debugf("[%s] ignore pps. err=%+v", r.uniqueKey, base.NewErrAvcUnsupportedPps(len(nal), id))
		return nil
	}
	r.pps = cloneBytes(nal[1:])
	if r.sps != nil && r.state == StateAwaitingParams {
		return r.transitToReady()
	}
	return nil
}

// onFrame 打包成一个视频tag，init segment生成前放入pending
func (r *Rtp2FlvRemuxer) onFrame(nal []byte, ts uint32) [][]byte {
	avcc := make([]byte, avc.AvccLength(nal))
	avc.PackAvcc(avcc, nal)
	tag := httpflv.PackAvcNaluTag(ts, avc.ParseNaluType(nal[0]) == avc.NaluTypeIdrSlice, avcc)

	if r.state == StateAwaitingParams {
		r.pending = append(r.pending, tag)
		return nil
	}
	return [][]byte{tag}
}

// transitToReady 生成init segment，并将其与pending中的tag一起返回
func (r *Rtp2FlvRemuxer) transitToReady() [][]byte {
	dcr := avc.BuildDecoderConfigurationRecord(r.sps, r.pps)
	r.initSegment = httpflv.PackAvcInitSegment(dcr)
	r.state = StateReady

	if ctx, err := avc.ParseSps(r.sps); err == nil {
		Log.Infof("[%s] init segment ready. profile=%d, level=%d, width=%d, height=%d, pending=%d",
			r.uniqueKey, ctx.Profile, ctx.Level, ctx.Width, ctx.Height, len(r.pending))
	} else {
		Log.Infof("[%s] init segment ready. sps=%s, pending=%d, parse sps failed. err=%+v",
			r.uniqueKey, hexHead(r.sps), len(r.pending), err)
	}

	out := make([][]byte, 0, 1+len(r.pending))
	out = append(out, r.initSegment)
	out = append(out, r.pending...)
	r.pending = nil
	return out
}

func hexHead(b []byte) string {
	return hex.EncodeToString(nazabytes.Prefix(b, 16))
}

// 返回值一定不为nil
func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
