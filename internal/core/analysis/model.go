package analysis

import (
	"strings"
	"time"

	"github.com/samber/mo"
)

// Status はリモートサービスから観測したジョブの状態
type Status string

const (
	// StatusPending は完了していないすべての状態を表す
	StatusPending Status = "Pending"
	// StatusComplete は終端状態
	StatusComplete Status = "Complete"
)

// ParseStatus はリモートが返したステータス文字列を Status に変換する。
// "Complete" 以外の値はすべて Pending として扱う。
func ParseStatus(raw string) Status {
	if raw == string(StatusComplete) {
		return StatusComplete
	}
	return StatusPending
}

// IsTerminal は終端状態かどうかを返す
func (s Status) IsTerminal() bool {
	return s == StatusComplete
}

func (s Status) String() string {
	return string(s)
}

// Job は1回の分析依頼。クライアントはメモリ上でのみ保持し永続化しない。
type Job struct {
	Identifier string
	Status     Status
	Result     mo.Option[string]
	StartedAt  time.Time
	UpdatedAt  time.Time
}

// NormalizeIdentifier は識別子（会社名）の前後の空白を除去して検証する
func NormalizeIdentifier(raw string) (string, error) {
	identifier := strings.TrimSpace(raw)
	if identifier == "" {
		return "", ErrEmptyIdentifier
	}
	return identifier, nil
}
