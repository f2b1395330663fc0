package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run は端末UIを起動し、終了するまでブロックする
func Run(ctx context.Context, analyzer Analyzer, opts ...tea.ProgramOption) error {
	// 終了後にイベント転送が詰まらないよう購読を止める
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewModel(ctx, analyzer), opts...)
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("端末UIの実行に失敗: %w", err)
	}
	return nil
}
