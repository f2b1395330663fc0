package watch

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Notifier は監視結果を通知するインターフェースです
type Notifier interface {
	Notify(checkedAt time.Time, reports []Report) error
}

// WriterNotifier は io.Writer に通知するNotifierです
type WriterNotifier struct {
	W io.Writer
}

// NewWriterNotifier は新しいWriterNotifierを作成します
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{W: w}
}

// Notify は監視結果を書き出します
func (n *WriterNotifier) Notify(checkedAt time.Time, reports []Report) error {
	if _, err := io.WriteString(n.W, format(checkedAt, reports)); err != nil {
		return fmt.Errorf("通知の書き込みに失敗: %w", err)
	}
	return nil
}

// FileNotifier はファイルに通知するNotifierです
type FileNotifier struct {
	FilePath string
}

// NewFileNotifier は新しいFileNotifierを作成します
func NewFileNotifier(filePath string) *FileNotifier {
	return &FileNotifier{
		FilePath: filePath,
	}
}

// Notify はファイルに監視結果を追記します
func (n *FileNotifier) Notify(checkedAt time.Time, reports []Report) error {
	f, err := os.OpenFile(n.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("ファイルを開けませんでした: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(format(checkedAt, reports)); err != nil {
		return fmt.Errorf("ファイルへの書き込みに失敗: %w", err)
	}

	return nil
}

// MultiNotifier は複数のNotifierに通知するNotifierです
type MultiNotifier struct {
	Notifiers []Notifier
}

// NewMultiNotifier は新しいMultiNotifierを作成します
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{
		Notifiers: notifiers,
	}
}

// Notify はすべてのNotifierに通知します
func (n *MultiNotifier) Notify(checkedAt time.Time, reports []Report) error {
	var errs []string

	for _, notifier := range n.Notifiers {
		if err := notifier.Notify(checkedAt, reports); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("一部の通知に失敗しました: %s", strings.Join(errs, "; "))
	}

	return nil
}

func format(checkedAt time.Time, reports []Report) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("=== status check %s ===\n", checkedAt.Format("2006-01-02 15:04:05")))
	for _, r := range reports {
		switch {
		case r.Err != nil:
			sb.WriteString(fmt.Sprintf("%s: error: %v\n", r.Identifier, r.Err))
		case r.NewlyComplete:
			sb.WriteString(fmt.Sprintf("%s: %s (newly complete)\n", r.Identifier, r.Status))
		default:
			sb.WriteString(fmt.Sprintf("%s: %s\n", r.Identifier, r.Status))
		}
	}

	return sb.String()
}
