// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package httpflv_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/wosledon/rtpserver/pkg/base"
	"github.com/wosledon/rtpserver/pkg/httpflv"
)

func TestPackHttpflvTag(t *testing.T) {
	b := httpflv.PackHttpflvTag(httpflv.TagTypeVideo, 0x12345678, []byte{0xAA, 0xBB})
	assert.Equal(t, []byte{
		0x09, 0x00, 0x00, 0x02, 0x34, 0x56, 0x78, 0x12, 0x00, 0x00, 0x00,
		0xAA, 0xBB,
		0x00, 0x00, 0x00, 0x0D,
	}, b)

	tag, err := httpflv.ReadTag(bytes.NewReader(b))
	assert.Equal(t, nil, err)
	assert.Equal(t, httpflv.TagTypeVideo, tag.Header.Type)
	assert.Equal(t, uint32(2), tag.Header.DataSize)
	assert.Equal(t, uint32(0x12345678), tag.Header.Timestamp)
	assert.Equal(t, []byte{0xAA, 0xBB}, tag.Payload())

	// prev tag size不匹配
	b[len(b)-1] = 0x0E
	_, err = httpflv.ReadTag(bytes.NewReader(b))
	assert.Equal(t, true, errors.Is(err, base.ErrHttpflv))

	_, err = httpflv.ReadTag(bytes.NewReader(b[:5]))
	assert.Equal(t, io.ErrUnexpectedEOF, err)

	_, err = httpflv.ParseTagHeader(b[:5])
	assert.Equal(t, true, errors.Is(err, base.ErrShortBuffer))
}

func TestPackAvcInitSegment(t *testing.T) {
	dcr := []byte{0x01, 0x42, 0x00, 0x1E}
	b := httpflv.PackAvcInitSegment(dcr)
	expected := []byte{
		'F', 'L', 'V', 0x01, 0x01, 0x00, 0x00, 0x00, 0x09,
		0x00, 0x00, 0x00, 0x00,
		0x09, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x17, 0x00, 0x00, 0x00, 0x00, 0x01, 0x42, 0x00, 0x1E,
		0x00, 0x00, 0x00, 0x14,
	}
	assert.Equal(t, expected, b)
	assert.Equal(t, true, httpflv.IsFlvHeader(b))

	rd := bytes.NewReader(b)
	flags, err := httpflv.ReadFlvHeader(rd)
	assert.Equal(t, nil, err)
	assert.Equal(t, httpflv.FlvHeaderFlagVideo, flags)
	tag, err := httpflv.ReadTag(rd)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, tag.IsAvcKeySeqHeader())
	assert.Equal(t, false, tag.IsAvcNalu())
}

func TestPackAvcNaluTag(t *testing.T) {
	avcc := []byte{0x00, 0x00, 0x00, 0x01, 0x65}
	b := httpflv.PackAvcNaluTag(1000, true, avcc)
	tag, err := httpflv.ReadTag(bytes.NewReader(b))
	assert.Equal(t, nil, err)
	assert.Equal(t, uint32(1000), tag.Header.Timestamp)
	assert.Equal(t, true, tag.IsAvcKeyNalu())
	assert.Equal(t, true, tag.IsAvcNalu())
	assert.Equal(t, append([]byte{0x17, 0x01, 0x00, 0x00, 0x00}, avcc...), tag.Payload())

	b = httpflv.PackAvcNaluTag(40, false, avcc)
	tag, err = httpflv.ReadTag(bytes.NewReader(b))
	assert.Equal(t, nil, err)
	assert.Equal(t, false, tag.IsAvcKeyNalu())
	assert.Equal(t, true, tag.IsAvcNalu())
	assert.Equal(t, httpflv.AvcInterFrame, tag.Payload()[0])
}

func TestPackSingleTagFlv(t *testing.T) {
	b := httpflv.PackSingleTagFlv([]byte{0x01, 0x02, 0x03}, true)
	assert.Equal(t, []byte{
		'F', 'L', 'V', 0x01, 0x04, 0x00, 0x00, 0x00, 0x09,
		0x00, 0x00, 0x00, 0x00,
		0x08, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x01, 0x02, 0x03,
		0x00, 0x00, 0x00, 0x0E,
	}, b)

	b = httpflv.PackSingleTagFlv(nil, false)
	assert.Equal(t, httpflv.FlvHeaderWithPrevTagSize+httpflv.TagHeaderSize+httpflv.PrevTagSizeFieldSize, len(b))
	assert.Equal(t, httpflv.FlvHeaderFlagVideo, b[4])
	assert.Equal(t, httpflv.TagTypeVideo, b[13])
}

func TestIsFlvHeader(t *testing.T) {
	assert.Equal(t, true, httpflv.IsFlvHeader(httpflv.FlvHeader))
	assert.Equal(t, false, httpflv.IsFlvHeader(httpflv.FlvHeader[:9]))
	assert.Equal(t, false, httpflv.IsFlvHeader(httpflv.PackHttpflvTag(httpflv.TagTypeVideo, 0, make([]byte, 8))))
}
