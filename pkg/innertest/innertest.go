// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package innertest

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/q191201771/naza/pkg/nazanet"
	"github.com/wosledon/rtpserver/pkg/avc"
	"github.com/wosledon/rtpserver/pkg/base"
	"github.com/wosledon/rtpserver/pkg/httpflv"
	"github.com/wosledon/rtpserver/pkg/logic"
	"github.com/wosledon/rtpserver/pkg/rtprtcp"
)

// 开启一个rtpserver
// 生成一段h264流，使用rtp推送至服务端，大帧走FU-A
// 分别用http-flv以及websocket-flv从服务端拉流
// 对比两份拉流数据是否完全一致，并检查其中的nal和时间戳与推送的是否一致

const (
	httpAddr   = "127.0.0.1:0"
	frameNum   = 30
	frameMs    = 40
	idrSize    = 3000
	interSize  = 100
	pullTagNum = 1 + frameNum // seq header + 每帧一个tag
)

var (
	tt *testing.T

	spsNal = []byte{0x67, 0x42, 0x00, 0x1E, 0xDA, 0x02, 0x80, 0xF6, 0x40}
	ppsNal = []byte{0x68, 0x00, 0xCE, 0x3C, 0x80}

	httpflvPullTagCount nazaatomic.Uint32
	wsflvPullTagCount   nazaatomic.Uint32
)

func Entry(t *testing.T) {
	tt = t

	rtpC, rtpPort, rtcpC, _, err := nazanet.NewAvailUdpConnPool(40000, 50000).Acquire2()
	assert.Equal(t, nil, err)
	_ = rtpC.Close()
	_ = rtcpC.Close()

	raw := fmt.Sprintf(`{
  "rtp": {"port": %d, "worker_num": 2},
  "httpflv": {"http_listen_addr": "%s", "url_pattern": "/flv", "ws_url_pattern": "/ws/flv"},
  "log": {"level": 2, "filename": "", "is_to_stdout": true, "is_rotate_daily": false}
}`, rtpPort, httpAddr)
	sm := logic.NewServerManager(func(option *logic.Option) {
		option.ConfRawContent = []byte(raw)
	})
	done := make(chan error, 1)
	go func() {
		done <- sm.RunLoop()
	}()

	var addr string
	waitUntil(func() bool {
		addr = sm.HttpListenAddr(httpAddr)
		return addr != "" && sm.StatRtpServer().State == "Running"
	})

	httpflvCh := make(chan []byte, 1)
	wsflvCh := make(chan []byte, 1)
	go func() {
		httpflvCh <- pullHttpflv(fmt.Sprintf("http://%s/flv", addr))
	}()
	go func() {
		wsflvCh <- pullWsflv(fmt.Sprintf("ws://%s/ws/flv", addr))
	}()
	waitUntil(func() bool {
		return sm.StatRtpServer().SubscriberNum == 2
	})

	frames := push(int(rtpPort))

	var httpflvData, wsflvData []byte
	select {
	case httpflvData = <-httpflvCh:
	case <-time.After(10 * time.Second):
		t.Fatal("wait httpflv pull timeout")
	}
	select {
	case wsflvData = <-wsflvCh:
	case <-time.After(10 * time.Second):
		t.Fatal("wait wsflv pull timeout")
	}

	Log.Debugf("count. %d %d", httpflvPullTagCount.Load(), wsflvPullTagCount.Load())
	assert.Equal(t, uint32(pullTagNum), httpflvPullTagCount.Load())
	assert.Equal(t, uint32(pullTagNum), wsflvPullTagCount.Load())
	assert.Equal(t, true, bytes.Equal(httpflvData, wsflvData))
	compareFrames(httpflvData, frames)

	sm.Dispose()
	select {
	case err = <-done:
		assert.Equal(t, nil, err)
	case <-time.After(5 * time.Second):
		t.Fatal("wait server manager exit timeout")
	}
}

var Log = base.Log

func waitUntil(cond func() bool) {
	for i := 0; i < 500; i++ {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	tt.Fatal("wait condition timeout")
}

// push 推送sps+pps+frameNum帧，返回推送的帧
func push(rtpPort int) (frames [][]byte) {
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: rtpPort})
	assert.Equal(tt, nil, err)
	defer conn.Close()

	packer := rtprtcp.NewRtpPackerAvc(0x12345678)
	send := func(pkts []rtprtcp.RtpPacket) {
		for _, pkt := range pkts {
			_, err := conn.Write(rtprtcp.PackRtpPacket(pkt))
			assert.Equal(tt, nil, err)
			time.Sleep(time.Millisecond)
		}
	}

	for i := 0; i < frameNum; i++ {
		var frame []byte
		if i%10 == 0 {
			frame = genNal(0x65, idrSize, i)
			send(packer.PackPayloads([][]byte{rtprtcp.PackAvcStapa([][]byte{spsNal, ppsNal})}, uint32(i*frameMs)))
		} else {
			frame = genNal(0x41, interSize, i)
		}
		frames = append(frames, frame)
		send(packer.PackNals([][]byte{frame}, uint32(i*frameMs)))
	}
	return
}

func genNal(header byte, size int, seed int) []byte {
	nal := make([]byte, size)
	nal[0] = header
	for i := 1; i < size; i++ {
		nal[i] = byte(i + seed)
	}
	return nal
}

func pullHttpflv(url string) []byte {
	resp, err := http.Get(url)
	assert.Equal(tt, nil, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	rd := io.TeeReader(resp.Body, &buf)
	_, err = httpflv.ReadFlvHeader(rd)
	assert.Equal(tt, nil, err)
	for httpflvPullTagCount.Load() < pullTagNum {
		_, err = httpflv.ReadTag(rd)
		if err != nil {
			Log.Errorf("httpflv pull read tag failed. err=%+v", err)
			break
		}
		httpflvPullTagCount.Increment()
	}
	return buf.Bytes()
}

func pullWsflv(url string) []byte {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.Equal(tt, nil, err)
	defer conn.Close()

	var buf bytes.Buffer
	for wsflvPullTagCount.Load() < pullTagNum {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			Log.Errorf("wsflv pull read message failed. err=%+v", err)
			break
		}
		buf.Write(msg)

		// 第一个消息是init segment，其中包含flv文件头
		rd := bytes.NewReader(msg)
		if httpflv.IsFlvHeader(msg) {
			_, _ = httpflv.ReadFlvHeader(rd)
		}
		for rd.Len() > 0 {
			if _, err = httpflv.ReadTag(rd); err != nil {
				Log.Errorf("wsflv pull parse tag failed. err=%+v", err)
				return buf.Bytes()
			}
			wsflvPullTagCount.Increment()
		}
	}
	return buf.Bytes()
}

func compareFrames(data []byte, frames [][]byte) {
	rd := bytes.NewReader(data)
	_, err := httpflv.ReadFlvHeader(rd)
	assert.Equal(tt, nil, err)

	tag, err := httpflv.ReadTag(rd)
	assert.Equal(tt, nil, err)
	assert.Equal(tt, true, tag.IsAvcKeySeqHeader())
	sps, pps, err := avc.ParseDecoderConfigurationRecord(tag.Payload()[httpflv.AvcTagBodyHeaderSize:])
	assert.Equal(tt, nil, err)
	assert.Equal(tt, spsNal[1:], sps)
	assert.Equal(tt, ppsNal[1:], pps)

	for i, frame := range frames {
		tag, err = httpflv.ReadTag(rd)
		assert.Equal(tt, nil, err)
		assert.Equal(tt, i%10 == 0, tag.IsAvcKeyNalu())
		assert.Equal(tt, uint32(i*frameMs), tag.Header.Timestamp)
		nals, err := avc.SplitNaluAvcc(tag.Payload()[httpflv.AvcTagBodyHeaderSize:])
		assert.Equal(tt, nil, err)
		assert.Equal(tt, 1, len(nals))
		assert.Equal(tt, true, bytes.Equal(frame, nals[0]))
	}
	assert.Equal(tt, 0, rd.Len())
}
