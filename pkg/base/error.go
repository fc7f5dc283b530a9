// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"errors"
	"fmt"
)

// ----- 通用的 ---------------------------------------------------------------------------------------------------------

var (
	ErrShortBuffer = errors.New("rtpserver: buffer too short")
)

// ----- pkg/avc -------------------------------------------------------------------------------------------------------

var (
	ErrAvc = errors.New("rtpserver.avc: fxxk")

	// ErrAvcUnsupportedPps 只支持id为0的PPS
	ErrAvcUnsupportedPps = errors.New("rtpserver.avc: unsupported pps")
)

func NewErrAvcUnsupportedPps(length int, id byte) error {
	return fmt.Errorf("%w. len=%d, id=%d", ErrAvcUnsupportedPps, length, id)
}

// ----- pkg/base ------------------------------------------------------------------------------------------------------

var (
	ErrAddrEmpty               = errors.New("rtpserver.base: http server addr empty")
	ErrMultiRegisterForPattern = errors.New("rtpserver.base: http server multiple registrations for pattern")
)

// ----- pkg/broadcast -------------------------------------------------------------------------------------------------

var ErrSubscriberClosed = errors.New("rtpserver.broadcast: subscriber closed")

// ----- pkg/httpflv ---------------------------------------------------------------------------------------------------

var (
	ErrHttpflv = errors.New("rtpserver.httpflv: fxxk")
)

// ----- pkg/rtprtcp ---------------------------------------------------------------------------------------------------

var (
	ErrRtpRtcpShortBuffer = errors.New("rtpserver.rtprtcp: buffer too short")
	ErrRtpMalformed       = errors.New("rtpserver.rtprtcp: malformed rtp packet")
	ErrRtcpMalformed      = errors.New("rtpserver.rtprtcp: malformed rtcp packet")
)

func NewErrRtpRtcpShortBuffer(need, actual int, msg string) error {
	return fmt.Errorf("%w. need=%d, actual=%d, msg=%s", ErrRtpRtcpShortBuffer, need, actual, msg)
}

func NewErrRtpMalformed(msg string) error {
	return fmt.Errorf("%w. %s", ErrRtpMalformed, msg)
}

func NewErrRtcpMalformed(msg string) error {
	return fmt.Errorf("%w. %s", ErrRtcpMalformed, msg)
}

// IsMalformedPacket rtp或rtcp包格式错误，调用方丢弃该包即可
func IsMalformedPacket(err error) bool {
	return errors.Is(err, ErrRtpRtcpShortBuffer) || errors.Is(err, ErrRtpMalformed) || errors.Is(err, ErrRtcpMalformed)
}

// ----- pkg/rtpserver -------------------------------------------------------------------------------------------------

var (
	ErrRtpServerBind    = errors.New("rtpserver.rtpserver: bind udp port failed")
	ErrRtpServerStarted = errors.New("rtpserver.rtpserver: server already started")
)

func NewErrRtpServerBind(addr string, err error) error {
	return fmt.Errorf("%w. addr=%s, err=%w", ErrRtpServerBind, addr, err)
}
