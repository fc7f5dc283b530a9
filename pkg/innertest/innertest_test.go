// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package innertest_test

import (
	"testing"

	"github.com/wosledon/rtpserver/pkg/innertest"
)

func TestInnerTest(t *testing.T) {
	innertest.Entry(t)
}
