// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package logic

import (
	"encoding/json"
	"net/http"

	"github.com/wosledon/rtpserver/pkg/base"
)

// HttpApiServer 只提供查询接口，监听由 base.HttpServerManager 负责
type HttpApiServer struct {
	sm *ServerManager
}

func NewHttpApiServer(sm *ServerManager) *HttpApiServer {
	return &HttpApiServer{
		sm: sm,
	}
}

func (h *HttpApiServer) statServerInfoHandler(w http.ResponseWriter, req *http.Request) {
	var v base.ApiStatServerInfo
	v.ErrorCode = base.ErrorCodeSucc
	v.Desp = base.DespSucc
	v.Data = h.sm.StatServerInfo()
	feedback(v, w)
}

func (h *HttpApiServer) statRtpHandler(w http.ResponseWriter, req *http.Request) {
	var v base.ApiStatRtpServer
	v.ErrorCode = base.ErrorCodeSucc
	v.Desp = base.DespSucc
	v.Data.Server = h.sm.StatRtpServer()
	v.Data.Sessions = h.sm.StatRtpSessions()
	if v.Data.Sessions == nil {
		v.Data.Sessions = []base.StatRtpSession{}
	}
	v.Data.Subs = h.sm.StatSubSessions()
	feedback(v, w)
}

func feedback(v interface{}, w http.ResponseWriter) {
	resp, _ := json.Marshal(v)
	w.Header().Add("Server", base.RtpServerHttpApiServer)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(resp)
}
