// Package analysisapitest は分析サービスの契約を満たすスクリプト化されたテスト用サーバを提供する。
package analysisapitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Call はサーバが受け取ったリクエストの記録
type Call struct {
	Method     string
	Endpoint   string
	Identifier string
	RequestID  string
	At         time.Time
}

type resultEntry struct {
	value      *string
	statusCode int
}

// Server は httptest.Server をラップした分析サービスのフェイク
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	statuses    map[string][]string
	results     map[string]resultEntry
	startStatus int
	statusDelay time.Duration
	calls       []Call
	inFlight    map[string]int
	maxInFlight map[string]int
}

// New はフェイクサーバを起動する。呼び出し側で Close すること。
func New() *Server {
	s := &Server{
		statuses:    make(map[string][]string),
		results:     make(map[string]resultEntry),
		inFlight:    make(map[string]int),
		maxInFlight: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze/", s.handleAnalyze)
	mux.HandleFunc("GET /status/{identifier}", s.handleStatus)
	mux.HandleFunc("GET /result/{identifier}", s.handleResult)
	s.Server = httptest.NewServer(mux)
	return s
}

// ScriptStatus は識別子に対して返すステータスの列を追加する。
// 列を使い切った後は最後の値を返し続ける。
func (s *Server) ScriptStatus(identifier string, statuses ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[identifier] = append(s.statuses[identifier], statuses...)
}

// SetResult は識別子の result フィールドを設定する
func (s *Server) SetResult(identifier, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[identifier] = resultEntry{value: &result, statusCode: http.StatusOK}
}

// SetResultStatus は結果エンドポイントが返すHTTPステータスを設定する
func (s *Server) SetResultStatus(identifier string, statusCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[identifier] = resultEntry{statusCode: statusCode}
}

// FailStart は開始エンドポイントが指定のステータスで失敗するようにする。0で解除。
func (s *Server) FailStart(statusCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startStatus = statusCode
}

// SetStatusDelay はステータスエンドポイントの応答を遅らせる
func (s *Server) SetStatusDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusDelay = d
}

// Calls は受け取ったリクエストの一覧を返す
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo はエンドポイントと識別子で絞り込んだリクエストの一覧を返す
func (s *Server) CallsTo(endpoint, identifier string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Call
	for _, c := range s.calls {
		if c.Endpoint == endpoint && c.Identifier == identifier {
			out = append(out, c)
		}
	}
	return out
}

// MaxConcurrentStatus は識別子について同時に処理中だったステータス確認の最大数を返す
func (s *Server) MaxConcurrentStatus(identifier string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight[identifier]
}

func (s *Server) record(r *http.Request, endpoint, identifier string) {
	s.calls = append(s.calls, Call{
		Method:     r.Method,
		Endpoint:   endpoint,
		Identifier: identifier,
		RequestID:  r.Header.Get("X-Request-ID"),
		At:         time.Now(),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Company string `json:"company"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.record(r, "analyze", req.Company)
	failWith := s.startStatus
	s.mu.Unlock()

	if failWith != 0 {
		writeJSON(w, failWith, map[string]string{"detail": "analysis could not be started"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Analysis started", "company": req.Company})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	identifier := r.PathValue("identifier")

	s.mu.Lock()
	s.record(r, "status", identifier)
	s.inFlight[identifier]++
	if s.inFlight[identifier] > s.maxInFlight[identifier] {
		s.maxInFlight[identifier] = s.inFlight[identifier]
	}
	script, scripted := s.statuses[identifier]
	var status string
	if len(script) > 0 {
		status = script[0]
		if len(script) > 1 {
			s.statuses[identifier] = script[1:]
		}
	}
	delay := s.statusDelay
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight[identifier]--
		s.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	if !scripted {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "unknown company"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	identifier := r.PathValue("identifier")

	s.mu.Lock()
	s.record(r, "result", identifier)
	entry, ok := s.results[identifier]
	s.mu.Unlock()

	switch {
	case !ok:
		writeJSON(w, http.StatusOK, map[string]any{})
	case entry.statusCode != http.StatusOK:
		writeJSON(w, entry.statusCode, map[string]string{"detail": http.StatusText(entry.statusCode)})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"result": *entry.value})
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
