// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package httpflv

import "github.com/wosledon/rtpserver/pkg/base"

var Log = base.Log

var (
	SubSessionWriteTimeoutMs = 10000

	// FlvHeader 只有视频的flv文件头，包含4字节的PreviousTagSize0
	FlvHeader = []byte{0x46, 0x4c, 0x56, 0x01, 0x01, 0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x00}
)

const (
	TagTypeAudio    uint8 = 8
	TagTypeVideo    uint8 = 9
	TagTypeMetadata uint8 = 18

	FlvHeaderFlagVideo uint8 = 0x01
	FlvHeaderFlagAudio uint8 = 0x04

	// FlvHeaderSize 不包含PreviousTagSize0
	FlvHeaderSize = 9

	// FlvHeaderWithPrevTagSize 包含PreviousTagSize0
	FlvHeaderWithPrevTagSize = 13

	TagHeaderSize        = 11
	PrevTagSizeFieldSize = 4
)

const (
	FrameTypeKey   uint8 = 1
	FrameTypeInter uint8 = 2

	CodecIdAvc uint8 = 7

	AvcKeyFrame   = FrameTypeKey<<4 | CodecIdAvc   // 0x17
	AvcInterFrame = FrameTypeInter<<4 | CodecIdAvc // 0x27

	AvcPacketTypeSeqHeader uint8 = 0
	AvcPacketTypeNalu      uint8 = 1

	// AvcTagBodyHeaderSize frame type + codec id(1) + AVCPacketType(1) + CompositionTime(3)
	AvcTagBodyHeaderSize = 5
)
