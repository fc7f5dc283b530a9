// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "strings"

// Version 整个项目的版本号
const Version = "v0.1.0"

var (
	LibraryName = "rtpserver"
	GithubRepo  = "github.com/wosledon/rtpserver"
	GithubSite  = "https://github.com/wosledon/rtpserver"

	// FullInfo e.g. rtpserver v0.1.0 (github.com/wosledon/rtpserver)
	FullInfo = LibraryName + " " + Version + " (" + GithubRepo + ")"

	// VersionDot e.g. 0.1.0
	VersionDot string

	// HttpApiVersion http api接口的版本
	HttpApiVersion = "v0.1.0"

	// RtpServerHttpflvSubSessionServer http-flv响应头中的Server字段
	RtpServerHttpflvSubSessionServer = LibraryName + "/" + Version

	// RtpServerHttpApiServer http api响应头中的Server字段
	RtpServerHttpApiServer = LibraryName + "/" + Version
)

func init() {
	VersionDot = strings.TrimPrefix(Version, "v")
}
