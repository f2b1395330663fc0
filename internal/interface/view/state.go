// Package view は分析ワークフローのUI状態と、その状態だけを入力とする描画を提供する。
package view

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/stock-analysis/internal/core/analysis"
)

// Tone はステータス表示の色分け
type Tone string

const (
	ToneHidden    Tone = ""
	ToneAnalyzing Tone = "analyzing"
	ToneComplete  Tone = "complete"
	ToneFailed    Tone = "failed"
)

// NoticeKind は結果を表示できない理由
type NoticeKind string

const (
	NoticeNone     NoticeKind = ""
	NoticeNotReady NoticeKind = "not_ready"
	NoticeNotFound NoticeKind = "not_found"
	NoticeError    NoticeKind = "error"
)

// Notice はユーザーへの通知
type Notice struct {
	Kind NoticeKind
	Text string
}

// State は画面の状態。比較可能な値のみで構成する。
type State struct {
	Identifier    string
	RunID         uuid.UUID
	StatusVisible bool
	StatusText    string
	Tone          Tone
	Attempts      int
	ResultEnabled bool
	Result        mo.Option[string]
	Notice        Notice
	LastError     string
}

const (
	textAnalyzing = "Analyzing..."
	textComplete  = "Analysis Complete!"
)

// Reduce はイベントを適用した新しい状態を返す。
// 現在の識別子と異なるイベント、置き換えられたループのイベントは無視する。
func Reduce(s State, e analysis.Event) State {
	if e.Type == analysis.EventAnalyzing {
		return State{
			Identifier:    e.Identifier,
			StatusVisible: true,
			StatusText:    textAnalyzing,
			Tone:          ToneAnalyzing,
			Result:        mo.None[string](),
		}
	}

	if e.Identifier != s.Identifier {
		return s
	}

	if e.RunID != uuid.Nil && e.Type != analysis.EventStarted && e.RunID != s.RunID {
		return s
	}

	switch e.Type {
	case analysis.EventStartFailed:
		s.StatusText = "Analysis failed to start"
		s.Tone = ToneFailed
		s.LastError = e.Message

	case analysis.EventStarted:
		s.RunID = e.RunID
		s.Attempts = 0

	case analysis.EventPolled:
		s.Attempts = e.Attempt
		s.LastError = ""

	case analysis.EventPollFailed:
		s.Attempts = e.Attempt
		s.LastError = e.Message

	case analysis.EventComplete:
		if s.ResultEnabled {
			return s
		}
		s.Attempts = e.Attempt
		s.StatusText = textComplete
		s.Tone = ToneComplete
		s.ResultEnabled = true
		s.LastError = ""

	case analysis.EventStopped:
		if s.Tone == ToneComplete {
			return s
		}
		s.StatusText = fmt.Sprintf("Analysis stopped: %s", e.Message)
		s.Tone = ToneFailed
		if e.Err != nil {
			s.LastError = e.Err.Error()
		}

	case analysis.EventResult:
		s.Result = mo.Some(e.Message)
		s.Notice = Notice{}

	case analysis.EventResultUnavailable:
		s.Result = mo.None[string]()
		s.Notice = NoticeFor(s.Identifier, e.Err)
	}

	return s
}

// NoticeFor は結果取得エラーを通知に変換する
func NoticeFor(identifier string, err error) Notice {
	switch {
	case errors.Is(err, analysis.ErrNotReady):
		return Notice{Kind: NoticeNotReady, Text: fmt.Sprintf("Analysis of %s is not complete yet.", identifier)}
	case errors.Is(err, analysis.ErrNotFound):
		return Notice{Kind: NoticeNotFound, Text: fmt.Sprintf("No analysis result found for %s.", identifier)}
	case err != nil:
		return Notice{Kind: NoticeError, Text: fmt.Sprintf("Could not fetch the result: %v", err)}
	default:
		return Notice{Kind: NoticeError, Text: "Could not fetch the result."}
	}
}
