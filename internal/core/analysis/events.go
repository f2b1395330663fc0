package analysis

import (
	"time"

	"github.com/google/uuid"
)

// EventType は分析ワークフローで発行されるイベントの種類
type EventType string

const (
	// EventAnalyzing は開始リクエスト送信前に発行される（楽観的UI更新）
	EventAnalyzing EventType = "analyzing"
	// EventStartFailed は開始リクエストが失敗した場合に発行される
	EventStartFailed EventType = "start_failed"
	// EventStarted は開始リクエストが受理されポーリングが開始された場合に発行される
	EventStarted EventType = "started"
	// EventPolled はステータス取得ごとに発行される
	EventPolled EventType = "polled"
	// EventPollFailed はステータス取得が失敗した場合に発行される
	EventPollFailed EventType = "poll_failed"
	// EventComplete は Complete を観測した場合にループごとに1回だけ発行される
	EventComplete EventType = "complete"
	// EventStopped は Complete を観測せずにループが終了した場合に発行される
	EventStopped EventType = "stopped"
	// EventResult は分析結果を取得できた場合に発行される
	EventResult EventType = "result"
	// EventResultUnavailable は分析結果を表示できない場合に発行される
	EventResultUnavailable EventType = "result_unavailable"
)

// Event は UI やログが購読するワークフローイベント
type Event struct {
	Seq        int64
	Timestamp  time.Time
	Type       EventType
	Identifier string
	RunID      uuid.UUID
	Status     Status
	Attempt    int
	Message    string
	Err        error
}

// Listener はイベントを受け取るコールバック。
// ポーリングのゴルーチンから呼ばれるため、実装側で排他制御すること。
type Listener func(Event)
