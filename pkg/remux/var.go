// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package remux 不同封装格式之间的转换
package remux

import "github.com/wosledon/rtpserver/pkg/base"

var Log = base.Log
