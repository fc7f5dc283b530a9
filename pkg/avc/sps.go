// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package avc

import (
	"github.com/q191201771/naza/pkg/nazabits"
	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/wosledon/rtpserver/pkg/base"
)

type Context struct {
	Profile uint8
	Level   uint8
	Width   uint32
	Height  uint32
}

// Sps 只解析计算宽高需要的字段
//
// ISO-14496-10.pdf
// 7.3.2.1.1 Sequence parameter set data syntax
type Sps struct {
	ProfileIdc uint8
	LevelIdc   uint8
	SpsId      uint32

	ChromaFormatIdc uint32

	Log2MaxFrameNumMinus4 uint32
	PicOrderCntType       uint32
	NumRefFrames          uint32

	PicWidthInMbsMinusOne       uint32
	PicHeightInMapUnitsMinusOne uint32
	FrameMbsOnlyFlag            uint8

	FrameCroppingFlag     uint8
	FrameCropLeftOffset   uint32
	FrameCropRightOffset  uint32
	FrameCropTopOffset    uint32
	FrameCropBottomOffset uint32
}

// ParseSps
//
// @param rbsp: 不包含1字节nal header的sps，可以包含防竞争字节
func ParseSps(rbsp []byte) (ctx Context, err error) {
	br := nazabits.NewBitReader(removeEmulationPrevention(rbsp))
	var sps Sps
	if err = parseSps(&br, &sps); err != nil {
		return
	}
	ctx.Profile = sps.ProfileIdc
	ctx.Level = sps.LevelIdc
	ctx.Width = (sps.PicWidthInMbsMinusOne+1)*16 - (sps.FrameCropLeftOffset+sps.FrameCropRightOffset)*2
	ctx.Height = (2-uint32(sps.FrameMbsOnlyFlag))*(sps.PicHeightInMapUnitsMinusOne+1)*16 - (sps.FrameCropTopOffset+sps.FrameCropBottomOffset)*2
	return
}

func parseSps(br *nazabits.BitReader, sps *Sps) (err error) {
	if sps.ProfileIdc, err = br.ReadBits8(8); err != nil {
		return nazaerrors.Wrap(err)
	}
	if _, err = br.ReadBits8(8); err != nil { // constraint_set_flags + reserved_zero_2bits
		return nazaerrors.Wrap(err)
	}
	if sps.LevelIdc, err = br.ReadBits8(8); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.SpsId, err = br.ReadGolomb(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.SpsId >= 32 {
		return nazaerrors.Wrap(base.ErrAvc)
	}

	sps.ChromaFormatIdc = 1
	switch sps.ProfileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		if sps.ChromaFormatIdc, err = br.ReadGolomb(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.ChromaFormatIdc > 3 {
			return nazaerrors.Wrap(base.ErrAvc)
		}
		if sps.ChromaFormatIdc == 3 {
			if _, err = br.ReadBits8(1); err != nil { // separate_colour_plane_flag
				return nazaerrors.Wrap(err)
			}
		}
		if _, err = br.ReadGolomb(); err != nil { // bit_depth_luma_minus8
			return nazaerrors.Wrap(err)
		}
		if _, err = br.ReadGolomb(); err != nil { // bit_depth_chroma_minus8
			return nazaerrors.Wrap(err)
		}
		if _, err = br.ReadBits8(1); err != nil { // qpprime_y_zero_transform_bypass_flag
			return nazaerrors.Wrap(err)
		}
		flag, err := br.ReadBits8(1) // seq_scaling_matrix_present_flag
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		if flag == 1 {
			// TODO(chef): 解析scaling list
			return nazaerrors.Wrap(base.ErrAvc)
		}
	}

	if sps.Log2MaxFrameNumMinus4, err = br.ReadGolomb(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.Log2MaxFrameNumMinus4 > 12 {
		return nazaerrors.Wrap(base.ErrAvc)
	}
	if sps.PicOrderCntType, err = br.ReadGolomb(); err != nil {
		return nazaerrors.Wrap(err)
	}
	switch sps.PicOrderCntType {
	case 0:
		if _, err = br.ReadGolomb(); err != nil { // log2_max_pic_order_cnt_lsb_minus4
			return nazaerrors.Wrap(err)
		}
	case 2:
		// noop
	default:
		return nazaerrors.Wrap(base.ErrAvc)
	}

	if sps.NumRefFrames, err = br.ReadGolomb(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if _, err = br.ReadBits8(1); err != nil { // gaps_in_frame_num_value_allowed_flag
		return nazaerrors.Wrap(err)
	}
	if sps.PicWidthInMbsMinusOne, err = br.ReadGolomb(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.PicHeightInMapUnitsMinusOne, err = br.ReadGolomb(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.FrameMbsOnlyFlag, err = br.ReadBits8(1); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.FrameMbsOnlyFlag == 0 {
		if _, err = br.ReadBits8(1); err != nil { // mb_adaptive_frame_field_flag
			return nazaerrors.Wrap(err)
		}
	}
	if _, err = br.ReadBits8(1); err != nil { // direct_8x8_inference_flag
		return nazaerrors.Wrap(err)
	}
	if sps.FrameCroppingFlag, err = br.ReadBits8(1); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.FrameCroppingFlag == 1 {
		if sps.FrameCropLeftOffset, err = br.ReadGolomb(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.FrameCropRightOffset, err = br.ReadGolomb(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.FrameCropTopOffset, err = br.ReadGolomb(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.FrameCropBottomOffset, err = br.ReadGolomb(); err != nil {
			return nazaerrors.Wrap(err)
		}
	}
	return nil
}

// 去掉 00 00 03 中的 03
func removeEmulationPrevention(b []byte) []byte {
	out := make([]byte, 0, len(b))
	zeroNum := 0
	for _, v := range b {
		if zeroNum >= 2 && v == 0x03 {
			zeroNum = 0
			continue
		}
		out = append(out, v)
		if v == 0 {
			zeroNum++
		} else {
			zeroNum = 0
		}
	}
	return out
}
