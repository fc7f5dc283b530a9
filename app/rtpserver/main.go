// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/q191201771/naza/pkg/bininfo"
	"github.com/wosledon/rtpserver/pkg/base"
	"github.com/wosledon/rtpserver/pkg/logic"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			_, _ = fmt.Fprintf(os.Stderr, "panic. r=%+v\n", r)
			base.OsExitAndWaitPressIfWindows(1)
		}
	}()

	confFilename := parseFlag()
	logic.Entry(confFilename)
}

func parseFlag() string {
	binInfoFlag := flag.Bool("v", false, "show bin info")
	cf := flag.String("c", "", "specify conf file")
	flag.Parse()

	if *binInfoFlag {
		_, _ = fmt.Fprint(os.Stderr, bininfo.StringifyMultiLine())
		_, _ = fmt.Fprintln(os.Stderr, base.FullInfo)
		os.Exit(0)
	}

	return *cf
}
