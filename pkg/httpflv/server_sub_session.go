// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package httpflv

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wosledon/rtpserver/pkg/base"
)

var flvHttpResponseHeader = map[string]string{
	"Server":                           base.RtpServerHttpflvSubSessionServer,
	"Cache-Control":                    "no-cache",
	"Content-Type":                     "video/x-flv",
	"Connection":                       "close",
	"Expires":                          "-1",
	"Pragma":                           "no-cache",
	"Access-Control-Allow-Credentials": "true",
	"Access-Control-Allow-Origin":      "*",
}

// httpChunkWriter http chunked方式下发，每块数据写完后立即flush
type httpChunkWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newHttpChunkWriter(w http.ResponseWriter) *httpChunkWriter {
	hw := &httpChunkWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
	hw.flusher, _ = w.(http.Flusher)
	return hw
}

func (hw *httpChunkWriter) WriteHeader() {
	h := hw.w.Header()
	for k, v := range flvHttpResponseHeader {
		h.Set(k, v)
	}
	hw.w.WriteHeader(http.StatusOK)
	hw.flush()
}

func (hw *httpChunkWriter) WriteChunk(b []byte) error {
	if SubSessionWriteTimeoutMs > 0 {
		// 底层不支持时返回错误，忽略即可
		_ = hw.rc.SetWriteDeadline(time.Now().Add(time.Duration(SubSessionWriteTimeoutMs) * time.Millisecond))
	}
	if _, err := hw.w.Write(b); err != nil {
		return err
	}
	hw.flush()
	return nil
}

func (hw *httpChunkWriter) flush() {
	if hw.flusher != nil {
		hw.flusher.Flush()
	}
}

// wsChunkWriter 每块数据作为一个websocket binary message
type wsChunkWriter struct {
	conn *websocket.Conn
}

func (ww *wsChunkWriter) WriteChunk(b []byte) error {
	if SubSessionWriteTimeoutMs > 0 {
		if err := ww.conn.SetWriteDeadline(time.Now().Add(time.Duration(SubSessionWriteTimeoutMs) * time.Millisecond)); err != nil {
			return err
		}
	}
	return ww.conn.WriteMessage(websocket.BinaryMessage, b)
}
