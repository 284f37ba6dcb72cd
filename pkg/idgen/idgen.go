// Package idgen 提供雪花算法 ID 生成器及进程级默认实例
package idgen

import (
	"sync"
	"time"
)

// Generator ID 生成器接口
type Generator interface {
	Generate() int64
}

// Snowflake 雪花算法 ID 生成器
// 组合结构：timestamp(41 bits) + nodeID(10 bits) + sequence(12 bits)
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	sequence  int64
	nodeID    int64
}

// NewSnowflake 创建雪花 ID 生成器
func NewSnowflake(nodeID int64) *Snowflake {
	return &Snowflake{nodeID: nodeID & 0x3FF}
}

// Generate 生成雪花 ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & 0xFFF
		if s.sequence == 0 {
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}
	s.timestamp = now

	return (now << 22) | (s.nodeID << 12) | s.sequence
}

var defaultGen = NewSnowflake(1)

// GenID 使用进程级默认实例生成 ID
func GenID() int64 {
	return defaultGen.Generate()
}
