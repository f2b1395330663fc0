package view

import (
	"sync"

	"github.com/jinford/stock-analysis/internal/core/analysis"
)

// Store は State を保持し、イベントを逐次適用する。
// ポーリングのゴルーチンから呼ばれても状態の更新は直列化される。
type Store struct {
	mu       sync.Mutex
	state    State
	onChange func(State)
}

// NewStore は新しい Store を作成する。onChange は状態が変化したときだけ呼ばれる（nil 可）。
func NewStore(onChange func(State)) *Store {
	return &Store{onChange: onChange}
}

// Apply はイベントを適用し、状態が変化したかを返す
func (s *Store) Apply(e analysis.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Reduce(s.state, e)
	if next == s.state {
		return false
	}
	s.state = next
	if s.onChange != nil {
		s.onChange(next)
	}
	return true
}

// Listen は analysis.Listener として使えるメソッド値を返す
func (s *Store) Listen(e analysis.Event) {
	s.Apply(e)
}

// Snapshot は現在の状態を返す
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
