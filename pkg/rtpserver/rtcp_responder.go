// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtpserver

import (
	"net"
	"time"

	"github.com/wosledon/rtpserver/pkg/rtprtcp"
)

// handleRtcpPacket 只处理复合包中的第一个SR或RR，回复一个RR
//
// RR的ssrc使用收到的sender ssrc，report block原样带回。
func (s *Server) handleRtcpPacket(b []byte, raddr *net.UDPAddr) {
	pkts, err := rtprtcp.ParseRtcpCompound(b)
	if err != nil {
		Log.Warnf("[%s] parse rtcp failed. err=%+v, parsed=%d, len=%d", s.uniqueKey, err, len(pkts), len(b))
	}

	for _, pkt := range pkts {
		switch pkt.Header.PacketType {
		case rtprtcp.RtcpPacketTypeSr:
			if session := s.sessionManager.Get(pkt.SenderSsrc); session != nil {
				session.OnSr(pkt.Sr, time.Now())
			}
		case rtprtcp.RtcpPacketTypeRr:
		default:
			continue
		}

		if raddr == nil {
			return
		}
		rr := rtprtcp.BuildRr(pkt.SenderSsrc, pkt.ReportBlocks)
		if err := s.rtcpConn.Write2Addr(rr, raddr); err != nil {
			Log.Warnf("[%s] write rr failed. raddr=%s, err=%+v", s.uniqueKey, raddr.String(), err)
			return
		}
		s.rtcpWrote.Increment()
		return
	}
}
