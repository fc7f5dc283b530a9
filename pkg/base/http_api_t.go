// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

const (
	ErrorCodeSucc = 0
	DespSucc      = "succ"
)

type ApiRespBasic struct {
	ErrorCode int    `json:"error_code"`
	Desp      string `json:"desp"`
}

type ServerInfo struct {
	ServerId   string `json:"server_id"`
	BinInfo    string `json:"bin_info"`
	Version    string `json:"version"`
	ApiVersion string `json:"api_version"`
	StartTime  string `json:"start_time"`
}

// StatRtpSession 一个ssrc对应一个session
type StatRtpSession struct {
	SessionId     string `json:"session_id"`
	Ssrc          uint32 `json:"ssrc"`
	RemoteAddr    string `json:"remote_addr"`
	StartTime     string `json:"start_time"`
	ReadPackets   uint64 `json:"read_packets"`
	ReadBytesSum  uint64 `json:"read_bytes_sum"`
	LostPackets   uint64 `json:"lost_packets"`
	LastSeq       uint16 `json:"last_seq"`
	InitSegmentOk bool   `json:"init_segment_ok"`
	LastSrTime    string `json:"last_sr_time"` // 最近一次sender report中的ntp时间，没有收到过时为空
}

// StatRtpServer 整个ingest pipeline的统计
type StatRtpServer struct {
	State            string `json:"state"`
	RtpPort          int    `json:"rtp_port"`
	RtcpPort         int    `json:"rtcp_port"`
	ReadPackets      uint64 `json:"read_packets"`
	ReadBytesSum     uint64 `json:"read_bytes_sum"`
	ParseFailed      uint64 `json:"parse_failed"`
	ProducedTags     uint64 `json:"produced_tags"`
	RtcpReadPackets  uint64 `json:"rtcp_read_packets"`
	RtcpWrotePackets uint64 `json:"rtcp_wrote_packets"`
	SessionNum       int    `json:"session_num"`
	SubscriberNum    int    `json:"subscriber_num"`
}

// StatSub 一个http-flv或websocket-flv拉流者
type StatSub struct {
	SessionId     string `json:"session_id"`
	Protocol      string `json:"protocol"`
	RemoteAddr    string `json:"remote_addr"`
	StartTime     string `json:"start_time"`
	WroteBytesSum uint64 `json:"wrote_bytes_sum"`
	WroteChunks   uint64 `json:"wrote_chunks"`
	DroppedChunks uint64 `json:"dropped_chunks"`
}

type ApiStatServerInfo struct {
	ApiRespBasic
	Data ServerInfo `json:"data"`
}

type ApiStatRtpServer struct {
	ApiRespBasic
	Data struct {
		Server   StatRtpServer    `json:"server"`
		Sessions []StatRtpSession `json:"sessions"`
		Subs     []StatSub        `json:"subs"`
	} `json:"data"`
}
