package view

import (
	"fmt"
	"strings"
)

// RenderText は状態をプレーンテキストで描画する
func RenderText(s State) string {
	if !s.StatusVisible {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", s.Identifier, s.StatusText)
	if s.Tone == ToneAnalyzing && s.Attempts > 0 {
		fmt.Fprintf(&b, " (checks: %d)", s.Attempts)
	}
	if s.LastError != "" && s.Tone != ToneComplete {
		fmt.Fprintf(&b, "\n  error: %s", s.LastError)
	}
	if s.ResultEnabled && s.Result.IsAbsent() && s.Notice.Kind == NoticeNone {
		b.WriteString("\n  result is ready")
	}
	if s.Notice.Kind != NoticeNone {
		fmt.Fprintf(&b, "\n  %s", s.Notice.Text)
	}
	if result, ok := s.Result.Get(); ok {
		fmt.Fprintf(&b, "\n\n%s", result)
	}
	return b.String()
}
