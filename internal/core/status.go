package core

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Operation は、Hub が中継する操作の種類です。
type Operation int

const (
	OpList Operation = iota
	OpDetails
	OpPages
	OpTags
	OpAuth
	opCount
)

// String は Operation を人間可読な文字列に変換します。
func (o Operation) String() string {
	switch o {
	case OpList:
		return "list"
	case OpDetails:
		return "details"
	case OpPages:
		return "pages"
	case OpTags:
		return "tags"
	case OpAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// SessionStats は、起動してからの操作回数を記録します。並行して更新できます。
type SessionStats struct {
	StartTime time.Time
	calls     [opCount]atomic.Int64
	failures  [opCount]atomic.Int64
	works     atomic.Int64 // 一覧で返した作品数
	pages     atomic.Int64 // 返したページ数
}

func newSessionStats() *SessionStats {
	return &SessionStats{StartTime: time.Now()}
}

func (s *SessionStats) record(op Operation, err error) {
	s.calls[op].Add(1)
	if err != nil {
		s.failures[op].Add(1)
	}
}

// Snapshot は、ある時点の統計情報です。
type Snapshot struct {
	StartTime time.Time        `json:"start_time"`
	Calls     map[string]int64 `json:"calls"`
	Failures  map[string]int64 `json:"failures"`
	Works     int64            `json:"works"`
	Pages     int64            `json:"pages"`
}

// Snapshot は、現在の統計情報のコピーを返します。
func (s *SessionStats) Snapshot() Snapshot {
	snap := Snapshot{
		StartTime: s.StartTime,
		Calls:     make(map[string]int64, opCount),
		Failures:  make(map[string]int64, opCount),
		Works:     s.works.Load(),
		Pages:     s.pages.Load(),
	}
	for op := Operation(0); op < opCount; op++ {
		snap.Calls[op.String()] = s.calls[op].Load()
		snap.Failures[op.String()] = s.failures[op].Load()
	}
	return snap
}

// FormatSessionInfo はセッション統計情報を文字列にフォーマットします。
func (s *SessionStats) FormatSessionInfo() string {
	uptime := time.Since(s.StartTime)
	hours := int(uptime.Hours())
	minutes := int(uptime.Minutes()) % 60

	var calls, failures int64
	for op := Operation(0); op < opCount; op++ {
		calls += s.calls[op].Load()
		failures += s.failures[op].Load()
	}
	return fmt.Sprintf("起動: %dh%dm | 操作: %d (失敗 %d) | 作品: %d | ページ: %d",
		hours, minutes, calls, failures, s.works.Load(), s.pages.Load())
}
