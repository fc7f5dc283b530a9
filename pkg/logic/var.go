// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package logic 组装rtpserver、httpflv以及http api，供app/rtpserver使用
package logic

import (
	"path/filepath"

	"github.com/wosledon/rtpserver/pkg/base"
)

var Log = base.Log

// DefaultConfFilenameList 命令行没有指定配置文件时，依次尝试
var DefaultConfFilenameList = []string{
	filepath.FromSlash("rtpserver.conf.json"),
	filepath.FromSlash("./conf/rtpserver.conf.json"),
	filepath.FromSlash("../rtpserver.conf.json"),
	filepath.FromSlash("../conf/rtpserver.conf.json"),
	filepath.FromSlash("../../conf/rtpserver.conf.json"),
}
