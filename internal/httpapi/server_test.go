package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/interviewer/internal/config"
	"github.com/antoniostano/interviewer/internal/interview"
	"github.com/antoniostano/interviewer/internal/live"
	"github.com/antoniostano/interviewer/internal/observability"
	"github.com/antoniostano/interviewer/internal/session"
	"github.com/antoniostano/interviewer/internal/transcript"
)

type testEnv struct {
	ts       *httptest.Server
	contexts *interview.InMemoryStore
	sessions *session.Manager
	metrics  *observability.Metrics
}

func newTestEnv(t *testing.T, runner live.Runner) *testEnv {
	t.Helper()
	cfg := config.Config{
		AppName:          "test",
		AgentModel:       "test-model",
		LiveProvider:     "mock",
		AllowAnyOrigin:   true,
		MetricsNamespace: "test",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	contexts := interview.NewInMemoryStore()
	sessions := session.NewManager(runner, cfg.AppName, 8)
	archive := transcript.NewArchive(transcript.NewInMemoryStore(), true, logger)
	metrics := observability.NewMetrics("test", nil)
	srv := New(cfg, contexts, sessions, archive, metrics, logger)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		sessions.CloseAll()
		ts.Close()
	})
	return &testEnv{ts: ts, contexts: contexts, sessions: sessions, metrics: metrics}
}

func instantRunner() *live.MockRunner {
	return &live.MockRunner{}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(e.ts.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer res.Body.Close()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	return res.StatusCode, payload
}

func (e *testEnv) setup(t *testing.T, userID, job, resume string) {
	t.Helper()
	status, payload := e.postJSON(t, "/setup/"+userID, map[string]string{
		"job_description":  job,
		"candidate_resume": resume,
	})
	require.Equal(t, http.StatusOK, status, payload)
	require.Equal(t, "configured", payload["status"])
}

// openStream opens the SSE stream and returns a frame reader and a function
// that disconnects the client.
func (e *testEnv) openStream(t *testing.T, path string) (*http.Response, *bufio.Reader, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.ts.URL+path, nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		res.Body.Close()
	})
	return res, bufio.NewReader(res.Body), cancel
}

func readFrame(t *testing.T, r *bufio.Reader) map[string]any {
	t.Helper()
	var frame map[string]any
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			require.NotNil(t, frame, "empty SSE frame")
			return frame
		}
		data, ok := strings.CutPrefix(line, "data: ")
		require.True(t, ok, "unexpected SSE line %q", line)
		require.NoError(t, json.Unmarshal([]byte(data), &frame))
	}
}

func readTurn(t *testing.T, r *bufio.Reader) (text string, frames []map[string]any) {
	t.Helper()
	var sb strings.Builder
	for {
		frame := readFrame(t, r)
		frames = append(frames, frame)
		if _, ok := frame["turn_complete"]; ok {
			return sb.String(), frames
		}
		if frame["mime_type"] == "text/plain" {
			sb.WriteString(frame["data"].(string))
		}
	}
}

func TestInterviewScenario(t *testing.T) {
	env := newTestEnv(t, instantRunner())
	env.setup(t, "42", "Backend engineer", "5 yrs Go")

	res, frames, disconnect := env.openStream(t, "/events/42")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", res.Header.Get("Cache-Control"))
	assert.Equal(t, 1, env.sessions.ActiveCount())

	status, payload := env.postJSON(t, "/send/42", map[string]string{"mime_type": "text/plain", "data": "Hello"})
	require.Equal(t, http.StatusOK, status, payload)
	assert.Equal(t, "sent", payload["status"])

	text, turn := readTurn(t, frames)
	assert.Equal(t, "You said: Hello", text)
	assert.Equal(t, map[string]any{"turn_complete": true, "interrupted": false}, turn[len(turn)-1])

	disconnect()
	require.Eventually(t, func() bool { return env.sessions.ActiveCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	status, payload = env.postJSON(t, "/send/42", map[string]string{"mime_type": "text/plain", "data": "still there?"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "no_active_session", payload["code"])
}

// faultRunner's stream fails once the first client request arrives.
type faultRunner struct{}

func (faultRunner) RunLive(ctx context.Context, req live.RunRequest) (iter.Seq2[*live.Event, error], error) {
	return func(yield func(*live.Event, error) bool) {
		select {
		case <-ctx.Done():
		case <-req.Queue.Done():
		case <-req.Queue.Requests():
			yield(nil, errors.New("upstream reset"))
		}
	}, nil
}

func (e *testEnv) scrapeMetrics(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	e.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestEventsStreamFaultCleansUp(t *testing.T) {
	env := newTestEnv(t, faultRunner{})
	env.setup(t, "13", "SWE", "Go")
	assert.NotContains(t, env.scrapeMetrics(t), "test_stream_faults_total 1")

	res, frames, _ := env.openStream(t, "/events/13")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 1, env.sessions.ActiveCount())

	status, payload := env.postJSON(t, "/send/13", map[string]string{"mime_type": "text/plain", "data": "Hello"})
	require.Equal(t, http.StatusOK, status, payload)

	rest, err := io.ReadAll(frames)
	require.NoError(t, err)
	assert.Empty(t, rest)

	require.Eventually(t, func() bool { return env.sessions.ActiveCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, env.scrapeMetrics(t), "test_stream_faults_total 1")

	status, payload = env.postJSON(t, "/send/13", map[string]string{"mime_type": "text/plain", "data": "again"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "no_active_session", payload["code"])
}

func TestSetupTruncatedBody(t *testing.T) {
	env := newTestEnv(t, instantRunner())

	res, err := http.Post(env.ts.URL+"/setup/4", "application/json",
		strings.NewReader(`{"job_description":"x","candidate_resume":"y"`))
	require.NoError(t, err)
	defer res.Body.Close()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "invalid_request", payload["code"])

	_, err = env.contexts.Get(context.Background(), "4")
	assert.ErrorIs(t, err, interview.ErrNotConfigured)
}

func TestSetupEmptyBodyIsMissingField(t *testing.T) {
	env := newTestEnv(t, instantRunner())

	res, err := http.Post(env.ts.URL+"/setup/4", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	defer res.Body.Close()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "missing_field", payload["code"])
}

func TestSendBeforeSetup(t *testing.T) {
	env := newTestEnv(t, instantRunner())

	status, payload := env.postJSON(t, "/send/7", map[string]string{"mime_type": "text/plain", "data": "hi"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "no_active_session", payload["code"])
	assert.NotEmpty(t, payload["error"])
}

func TestSetupMissingFieldKeepsPriorContext(t *testing.T) {
	env := newTestEnv(t, instantRunner())
	env.setup(t, "5", "SRE", "Pager veteran")

	for _, body := range []map[string]string{
		{"job_description": "", "candidate_resume": "x"},
		{"job_description": "x"},
		{},
	} {
		status, payload := env.postJSON(t, "/setup/5", body)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "missing_field", payload["code"])
	}

	ic, err := env.contexts.Get(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, "SRE", ic.JobDescription)
	assert.Equal(t, "Pager veteran", ic.Resume)
}

func TestSetupAcceptsResumeAliasAndCanonicalizesUserID(t *testing.T) {
	env := newTestEnv(t, instantRunner())

	status, payload := env.postJSON(t, "/setup/042", map[string]string{
		"job_description": "Data engineer",
		"resume":          "Spark, Kafka",
	})
	require.Equal(t, http.StatusOK, status, payload)

	ic, err := env.contexts.Get(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "Spark, Kafka", ic.Resume)
}

func TestInvalidUserID(t *testing.T) {
	env := newTestEnv(t, instantRunner())

	status, payload := env.postJSON(t, "/setup/alice", map[string]string{"job_description": "a", "resume": "b"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_user_id", payload["code"])
}

func TestEventsRequiresContext(t *testing.T) {
	env := newTestEnv(t, instantRunner())

	res, err := http.Get(env.ts.URL + "/events/9")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	assert.Equal(t, "not_configured", payload["code"])
	assert.Zero(t, env.sessions.ActiveCount())
}

func TestEventsSessionStartFailure(t *testing.T) {
	env := newTestEnv(t, &live.MockRunner{StartErr: errors.New("quota exceeded")})
	env.setup(t, "3", "PM", "Roadmaps")

	res, err := http.Get(env.ts.URL + "/events/3")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	assert.Equal(t, "session_start_failed", payload["code"])
	assert.Zero(t, env.sessions.ActiveCount())
}

func TestSendAudioAndUnsupportedMime(t *testing.T) {
	env := newTestEnv(t, instantRunner())
	env.setup(t, "11", "QA", "Selenium")
	_, frames, _ := env.openStream(t, "/events/11?is_audio=true")

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	status, payload := env.postJSON(t, "/send/11", map[string]string{
		"mime_type": "audio/pcm",
		"data":      base64.StdEncoding.EncodeToString(pcm),
	})
	require.Equal(t, http.StatusOK, status, payload)

	frame := readFrame(t, frames)
	assert.Equal(t, "audio/pcm", frame["mime_type"])
	assert.Equal(t, base64.StdEncoding.EncodeToString(pcm), frame["data"])
	assert.Equal(t, map[string]any{"turn_complete": true, "interrupted": false}, readFrame(t, frames))

	status, payload = env.postJSON(t, "/send/11", map[string]string{"mime_type": "image/png", "data": "x"})
	assert.Equal(t, http.StatusUnsupportedMediaType, status)
	assert.Equal(t, "unsupported_mime_type", payload["code"])

	status, payload = env.postJSON(t, "/send/11", map[string]string{"mime_type": "audio/pcm", "data": "%%%"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", payload["code"])
}

func TestSecondStreamReplacesFirst(t *testing.T) {
	env := newTestEnv(t, instantRunner())
	env.setup(t, "8", "SWE", "Rust")

	_, first, _ := env.openStream(t, "/events/8")
	_, second, _ := env.openStream(t, "/events/8")

	// The superseded stream ends.
	_, err := first.ReadString('\n')
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, env.sessions.ActiveCount())

	status, _ := env.postJSON(t, "/send/8", map[string]string{"mime_type": "text/plain", "data": "ping"})
	require.Equal(t, http.StatusOK, status)
	text, _ := readTurn(t, second)
	assert.Equal(t, "You said: ping", text)
}

func TestTranscriptRecordsBothSides(t *testing.T) {
	env := newTestEnv(t, instantRunner())
	env.setup(t, "21", "Analyst", "Contact me at jane@example.com")
	_, frames, _ := env.openStream(t, "/events/21")

	status, _ := env.postJSON(t, "/send/21", map[string]string{"mime_type": "text/plain", "data": "mail jane@example.com"})
	require.Equal(t, http.StatusOK, status)
	readTurn(t, frames)

	var turns []transcript.TurnRecord
	require.Eventually(t, func() bool {
		res, err := http.Get(env.ts.URL + "/transcript/21")
		if err != nil {
			return false
		}
		defer res.Body.Close()
		var payload struct {
			Turns []transcript.TurnRecord `json:"turns"`
		}
		if json.NewDecoder(res.Body).Decode(&payload) != nil {
			return false
		}
		turns = payload.Turns
		return len(turns) == 2
	}, 2*time.Second, 10*time.Millisecond)

	roles := map[transcript.Role]string{}
	for _, turn := range turns {
		roles[turn.Role] = turn.Content
		assert.True(t, turn.PIIRedacted)
		assert.NotContains(t, turn.Content, "jane@example.com")
	}
	assert.Contains(t, roles, transcript.RoleCandidate)
	assert.Contains(t, roles, transcript.RoleInterviewer)
}

func TestWebSocketSession(t *testing.T) {
	env := newTestEnv(t, instantRunner())
	env.setup(t, "77", "Designer", "Figma")

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws/77"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.sessions.ActiveCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, conn.WriteJSON(map[string]string{"mime_type": "text/plain", "data": "Hi"}))

	var sb strings.Builder
	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		if _, ok := frame["turn_complete"]; ok {
			break
		}
		sb.WriteString(frame["data"].(string))
	}
	assert.Equal(t, "You said: Hi", sb.String())

	require.NoError(t, conn.WriteJSON(map[string]string{"mime_type": "video/mp4", "data": ""}))
	var errFrame map[string]any
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, "unsupported_mime_type", errFrame["code"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return env.sessions.ActiveCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestCORSPreflightAllowsAnyOrigin(t *testing.T) {
	env := newTestEnv(t, instantRunner())

	req, err := http.NewRequest(http.MethodOptions, env.ts.URL+"/send/1", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://elsewhere.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, res.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestIndexAndHealth(t *testing.T) {
	env := newTestEnv(t, instantRunner())

	res, err := http.Get(env.ts.URL + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `id="setupForm"`)

	res, err = http.Get(env.ts.URL + "/static/js/app.js")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(env.ts.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	assert.Equal(t, "ok", payload["status"])
}
