package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionClockKey returns the hash key holding a session's deadline snapshot.
func (r *CacheKeyStruct) SessionClockKey(sessionID string) string {
	return fmt.Sprintf("session:%s:clock", sessionID)
}

// SweepLockKey returns the lease key that keeps one replica sweeping at a time.
func (r *CacheKeyStruct) SweepLockKey() string {
	return "sweeper:expired_sessions:lock"
}

// AssessmentMonitorChannel returns the Redis PubSub channel name for an assessment's live monitor.
func (r *CacheKeyStruct) AssessmentMonitorChannel(assessmentID string) string {
	return fmt.Sprintf("assessment:%s:monitor", assessmentID)
}

var CacheKey = NewCacheKeyStruct()
