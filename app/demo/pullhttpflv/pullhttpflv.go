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
	"net/http"
	"os"
	"time"

	"github.com/q191201771/naza/pkg/bitrate"
	"github.com/wosledon/rtpserver/pkg/avc"
	"github.com/wosledon/rtpserver/pkg/base"
	"github.com/wosledon/rtpserver/pkg/httpflv"
)

// HTTP-FLV拉流客户端，打印收到的tag信息，可以用来检查rtpserver的输出
//
// Example:
// ./bin/pullhttpflv -i http://127.0.0.1:8080/flv
// ./bin/pullhttpflv -i http://127.0.0.1:8080/flv -n 100

var Log = base.Log

func main() {
	url, maxTagNum := parseFlag()

	resp, err := http.Get(url)
	if err != nil {
		Log.Errorf("pull failed. url=%s, err=%+v", url, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	Log.Infof("< R http response. status=%d, content-type=%s", resp.StatusCode, resp.Header.Get("Content-Type"))

	flags, err := httpflv.ReadFlvHeader(resp.Body)
	if err != nil {
		Log.Errorf("read flv header failed. err=%+v", err)
		os.Exit(1)
	}
	Log.Infof("< R flv header. flags=%d", flags)

	br := bitrate.New()
	lastLog := time.Now()
	for i := 0; maxTagNum == 0 || i < maxTagNum; i++ {
		tag, err := httpflv.ReadTag(resp.Body)
		if err != nil {
			Log.Errorf("read tag failed. err=%+v", err)
			break
		}
		br.Add(len(tag.Raw))

		switch {
		case tag.IsAvcKeySeqHeader():
			sps, pps, err := avc.ParseDecoderConfigurationRecord(tag.Payload()[httpflv.AvcTagBodyHeaderSize:])
			if err != nil {
				Log.Warnf("parse seq header failed. err=%+v", err)
				continue
			}
			ctx, err := avc.ParseSps(sps)
			Log.Infof("< R V SH. ts=%d, sps=%d, pps=%d, ctx=%+v, err=%v", tag.Header.Timestamp, len(sps), len(pps), ctx, err)
		case tag.IsAvcKeyNalu():
			Log.Debugf("< R V K. ts=%d, size=%d", tag.Header.Timestamp, tag.Header.DataSize)
		}

		if time.Since(lastLog) > 5*time.Second {
			lastLog = time.Now()
			Log.Infof("tag num=%d, bitrate=%.3fkbit/s", i+1, br.Rate())
		}
	}
	Log.Info("bye.")
}

func parseFlag() (string, int) {
	i := flag.String("i", "", "specify http-flv url")
	n := flag.Int("n", 0, "num of tags to read, 0 means unlimited")
	flag.Parse()
	if *i == "" {
		flag.Usage()
		_, _ = fmt.Fprintf(os.Stderr, `Example:
  %s -i http://127.0.0.1:8080/flv
`, os.Args[0])
		base.OsExitAndWaitPressIfWindows(1)
	}
	return *i, *n
}
