// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package logic

import (
	"github.com/wosledon/rtpserver/pkg/base"
)

// Entry 阻塞运行，直到收到退出信号
func Entry(confFile string) {
	sm := NewServerManager(func(option *Option) {
		option.ConfFilename = confFile
	})
	if err := sm.RunLoop(); err != nil {
		Log.Errorf("run server manager failed. err=%+v", err)
		base.OsExitAndWaitPressIfWindows(1)
	}
	Log.Info("bye.")
}
