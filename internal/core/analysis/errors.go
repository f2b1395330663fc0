package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyIdentifier は識別子が空の場合のエラー
	ErrEmptyIdentifier = errors.New("identifier is required")

	// ErrNotReady は分析がまだ完了していない場合のエラー
	ErrNotReady = errors.New("analysis not complete")

	// ErrNotFound はリモートに該当する分析結果が存在しない場合のエラー
	ErrNotFound = errors.New("analysis result not found")

	// ErrMalformedResponse はレスポンスのJSONを解釈できない場合のエラー
	ErrMalformedResponse = errors.New("malformed response")

	// ErrPollLimitExceeded はポーリング回数の上限に達した場合のエラー
	ErrPollLimitExceeded = errors.New("poll limit exceeded")

	// ErrPollTimeout はポーリング全体のタイムアウトに達した場合のエラー
	ErrPollTimeout = errors.New("poll timeout")

	// ErrTooManyPollErrors は連続したステータス取得失敗が上限に達した場合のエラー
	ErrTooManyPollErrors = errors.New("too many consecutive poll errors")

	// ErrSuperseded は同じ識別子で新しい分析が開始されポーリングが置き換えられた場合のエラー
	ErrSuperseded = errors.New("poll loop superseded by a newer analysis")

	// ErrAnalysisAlreadyRunning は reject ポリシーで重複開始された場合のエラー
	ErrAnalysisAlreadyRunning = errors.New("analysis already running")

	// ErrTrackerClosed はクローズ済みのトラッカーでポーリングを開始しようとした場合のエラー
	ErrTrackerClosed = errors.New("poll tracker closed")
)

// TransportError は通信失敗（ネットワーク到達不可、非2xx、不正なレスポンス）を表す
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport はエラーが通信失敗に分類されるかを返す
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
