// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/q191201771/naza/pkg/bitrate"
	"github.com/q191201771/naza/pkg/nazanet"
	"github.com/wosledon/rtpserver/pkg/avc"
	"github.com/wosledon/rtpserver/pkg/base"
	"github.com/wosledon/rtpserver/pkg/rtprtcp"
)

// RTP推流客户端，读取本地H264 Annex-B裸流文件，按帧率匀速推送到rtpserver
//
// sps和pps合并成STAP-A，与紧随其后的帧一起发送；大于mtu的nal使用FU-A分片。
// 每秒向rtcp端口（rtp端口+1）发送一个SR，并打印收到的RR。
//
// Example:
// ./bin/pushrtp -i testdata/test.h264 -o 127.0.0.1:5004
// ./bin/pushrtp -i testdata/test.h264 -o 127.0.0.1:5004 -f 30 -r

var Log = base.Log

func main() {
	filename, addr, fps, ssrc, isRecursive := parseFlag()

	content, err := os.ReadFile(filename)
	if err != nil {
		Log.Errorf("read file failed. file=%s, err=%+v", filename, err)
		os.Exit(1)
	}
	nals, err := avc.SplitNaluAnnexb(content)
	if err != nil {
		Log.Errorf("split annexb failed. err=%+v", err)
		os.Exit(1)
	}
	Log.Infof("read file succ. file=%s, size=%d, nal num=%d", filename, len(content), len(nals))

	rtpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		Log.Errorf("invalid addr. addr=%s, err=%+v", addr, err)
		os.Exit(1)
	}
	rtcpAddr := &net.UDPAddr{IP: rtpAddr.IP, Port: rtpAddr.Port + 1, Zone: rtpAddr.Zone}

	rtpConn, err := nazanet.NewUdpConnection(func(option *nazanet.UdpConnectionOption) {
		option.RAddr = rtpAddr.String()
	})
	if err != nil {
		Log.Errorf("create rtp conn failed. err=%+v", err)
		os.Exit(1)
	}
	rtcpConn, err := nazanet.NewUdpConnection(func(option *nazanet.UdpConnectionOption) {
		option.RAddr = rtcpAddr.String()
	})
	if err != nil {
		Log.Errorf("create rtcp conn failed. err=%+v", err)
		os.Exit(1)
	}
	go func() {
		_ = rtcpConn.RunLoop(func(b []byte, raddr *net.UDPAddr, err error) bool {
			if err != nil {
				return false
			}
			pkts, err := rtprtcp.ParseRtcpCompound(b)
			for _, pkt := range pkts {
				Log.Infof("< R rtcp. type=%d, ssrc=%d, blocks=%d", pkt.Header.PacketType, pkt.SenderSsrc, len(pkt.ReportBlocks))
			}
			if err != nil {
				Log.Warnf("parse rtcp failed. err=%+v", err)
			}
			return true
		})
	}()

	p := &pusher{
		ssrc:     ssrc,
		packer:   rtprtcp.NewRtpPackerAvc(ssrc),
		rtpConn:  rtpConn,
		rtcpConn: rtcpConn,
		interval: time.Second / time.Duration(fps),
		br:       bitrate.New(),
	}
	for {
		p.push(nals)
		if !isRecursive {
			break
		}
	}
	Log.Infof("push done. packets=%d, bytes=%d", p.pktCnt, p.octetCnt)
	_ = rtpConn.Dispose()
	_ = rtcpConn.Dispose()
	Log.Info("bye.")
}

type pusher struct {
	ssrc     uint32
	packer   *rtprtcp.RtpPackerAvc
	rtpConn  *nazanet.UdpConnection
	rtcpConn *nazanet.UdpConnection
	interval time.Duration
	br       bitrate.Bitrate

	tsMs     uint32
	pktCnt   uint32
	octetCnt uint32
	lastSr   time.Time
}

func (p *pusher) push(nals [][]byte) {
	var params [][]byte
	for _, nal := range nals {
		if len(nal) == 0 {
			continue
		}
		switch avc.ParseNaluType(nal[0]) {
		case avc.NaluTypeSps, avc.NaluTypePps:
			params = append(params, nal)
			continue
		}

		if len(params) != 0 {
			p.send(p.packer.PackPayloads([][]byte{rtprtcp.PackAvcStapa(params)}, p.tsMs))
			params = nil
		}
		p.send(p.packer.PackNals([][]byte{nal}, p.tsMs))

		p.tsMs += uint32(p.interval / time.Millisecond)
		time.Sleep(p.interval)
		p.maybeSendSr()
	}
}

func (p *pusher) send(pkts []rtprtcp.RtpPacket) {
	for _, pkt := range pkts {
		b := rtprtcp.PackRtpPacket(pkt)
		if err := p.rtpConn.Write(b); err != nil {
			Log.Warnf("write rtp failed. err=%+v", err)
			continue
		}
		p.pktCnt++
		p.octetCnt += uint32(len(pkt.Payload))
		p.br.Add(len(b))
	}
}

func (p *pusher) maybeSendSr() {
	now := time.Now()
	if now.Sub(p.lastSr) < time.Second {
		return
	}
	p.lastSr = now
	rtpTs := uint32(uint64(p.tsMs) * rtprtcp.RtpClockRateAvc / 1000)
	sr := rtprtcp.BuildSr(p.ssrc, rtprtcp.NtpNow(), rtpTs, p.pktCnt, p.octetCnt, nil)
	if err := p.rtcpConn.Write(sr); err != nil {
		Log.Warnf("write sr failed. err=%+v", err)
	}
	Log.Debugf("> W sr. packets=%d, bitrate=%.3fkbit/s", p.pktCnt, p.br.Rate())
}

func parseFlag() (filename string, addr string, fps int, ssrc uint32, isRecursive bool) {
	i := flag.String("i", "", "specify h264 annexb file")
	o := flag.String("o", "127.0.0.1:5004", "specify rtp server addr")
	f := flag.Int("f", 25, "frame rate")
	s := flag.Uint("s", 0x12345678, "ssrc")
	r := flag.Bool("r", false, "recursive push if reach end of file")
	flag.Parse()
	if *i == "" || *f <= 0 {
		flag.Usage()
		_, _ = fmt.Fprintf(os.Stderr, `Example:
  %s -i testdata/test.h264 -o 127.0.0.1:5004
  %s -i testdata/test.h264 -o 127.0.0.1:5004 -f 30 -r
`, os.Args[0], os.Args[0])
		base.OsExitAndWaitPressIfWindows(1)
	}
	return *i, *o, *f, uint32(*s), *r
}
