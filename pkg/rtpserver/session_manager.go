// Copyright 2024, Chef.  All rights reserved.
// https://github.com/wosledon/rtpserver
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtpserver

import (
	"sync"
	"time"

	"github.com/wosledon/rtpserver/pkg/remux"
)

const sessionShardNum = 32

type sessionShard struct {
	mu       sync.Mutex
	sessions map[uint32]*Session
}

// SessionManager 按ssrc分片管理Session，不同分片之间的查找互不阻塞
type SessionManager struct {
	shards     [sessionShardNum]sessionShard
	modOptions []remux.ModRtp2FlvRemuxerOption

	initMu     sync.Mutex
	latestInit []byte
}

func NewSessionManager(modOptions ...remux.ModRtp2FlvRemuxerOption) *SessionManager {
	m := &SessionManager{
		modOptions: modOptions,
	}
	for i := range m.shards {
		m.shards[i].sessions = make(map[uint32]*Session)
	}
	return m
}

// GetOrCreate
//
// @return created: 是否新创建
func (m *SessionManager) GetOrCreate(ssrc uint32, remoteAddr string) (session *Session, created bool) {
	shard := m.shard(ssrc)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if session, ok := shard.sessions[ssrc]; ok {
		return session, false
	}
	session = newSession(ssrc, remoteAddr, m.modOptions...)
	shard.sessions[ssrc] = session
	return session, true
}

// Get 不存在时返回nil
func (m *SessionManager) Get(ssrc uint32) *Session {
	shard := m.shard(ssrc)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return shard.sessions[ssrc]
}

func (m *SessionManager) Remove(ssrc uint32) {
	shard := m.shard(ssrc)
	shard.mu.Lock()
	session, ok := shard.sessions[ssrc]
	delete(shard.sessions, ssrc)
	shard.mu.Unlock()
	if ok {
		session.dispose("remove")
	}
}

func (m *SessionManager) SessionNum() (num int) {
	for i := range m.shards {
		shard := &m.shards[i]
		shard.mu.Lock()
		num += len(shard.sessions)
		shard.mu.Unlock()
	}
	return
}

// Iterate 遍历时不持有分片锁，回调中可以调用SessionManager的其他函数
func (m *SessionManager) Iterate(onSession func(session *Session)) {
	var sessions []*Session
	for i := range m.shards {
		shard := &m.shards[i]
		shard.mu.Lock()
		for _, s := range shard.sessions {
			sessions = append(sessions, s)
		}
		shard.mu.Unlock()
	}
	for _, s := range sessions {
		onSession(s)
	}
}

// SweepIdle 移除最后活跃时间早于 now-timeout 的Session
//
// @return 被移除的Session
func (m *SessionManager) SweepIdle(now time.Time, timeout time.Duration) (removed []*Session) {
	deadline := now.Add(-timeout)
	for i := range m.shards {
		shard := &m.shards[i]
		shard.mu.Lock()
		for ssrc, s := range shard.sessions {
			if s.LastActiveTime().Before(deadline) {
				delete(shard.sessions, ssrc)
				removed = append(removed, s)
			}
		}
		shard.mu.Unlock()
	}
	for _, s := range removed {
		s.dispose("idle")
	}
	return
}

// LatestInitSegment 最近一次生成的init segment，供后加入的拉流者使用，没有时返回nil
func (m *SessionManager) LatestInitSegment() []byte {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	return m.latestInit
}

func (m *SessionManager) setLatestInitSegment(init []byte) {
	m.initMu.Lock()
	m.latestInit = init
	m.initMu.Unlock()
}

func (m *SessionManager) shard(ssrc uint32) *sessionShard {
	return &m.shards[ssrc%sessionShardNum]
}
