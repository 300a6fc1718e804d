package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/quill/internal/inference"
	"github.com/samcharles93/quill/internal/tokenizer"
	"github.com/samcharles93/quill/internal/vocab"
)

// byteTokenizer has one token per byte: id b decodes to byte b.
func byteTokenizer(t *testing.T) *tokenizer.BPE {
	t.Helper()
	tokens := make(map[string]int, 256)
	for b := 0; b < 256; b++ {
		tokens[tokenizer.ByteSymbol(byte(b))] = b
	}
	v, err := vocab.New(tokens, nil)
	if err != nil {
		t.Fatalf("vocab: %v", err)
	}
	tok, err := tokenizer.NewBPE(v, 0)
	if err != nil {
		t.Fatalf("tokenizer: %v", err)
	}
	return tok
}

func favour(id int) inference.InferFunc {
	return func(_ context.Context, w []int) ([][]float32, error) {
		rows := make([][]float32, len(w))
		for i := range rows {
			rows[i] = make([]float32, 256)
			rows[i][id] = 5
		}
		return rows, nil
	}
}

type testServer struct {
	echo   *echo.Echo
	engine *inference.Engine
	server *Server
}

func newTestServer(t *testing.T, model inference.Model, mutate func(*Options)) testServer {
	t.Helper()
	tok := byteTokenizer(t)
	eng, err := inference.New(tok, model, inference.Config{Window: 8})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	opts := Options{
		Generator: eng,
		Tokenizer: tok,
		Defaults:  inference.DefaultRequestDefaults(),
		Info:      Info{Version: "test", Backend: "fake", VocabSize: 256, Window: 8},
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv := NewServer(opts)
	e := echo.New()
	srv.Register(e)
	return testServer{echo: e, engine: eng, server: srv}
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestGenerateLifecycle(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, favour('h'), nil)
	rec := doJSON(t, ts.echo, http.MethodPost, "/v1/generate", `{"prompt":"hi","max_tokens":3,"strategy":"greedy"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate status: got %d body=%s", rec.Code, rec.Body.String())
	}
	created := decodeBody[GenerateResponse](t, rec)
	if created.Status != "completed" || created.Text != "hhh" {
		t.Fatalf("unexpected generation: %+v", created)
	}
	if !strings.HasPrefix(created.ID, "gen_") || created.Strategy != "greedy" {
		t.Fatalf("unexpected id/strategy: %q %q", created.ID, created.Strategy)
	}
	if created.Usage != (Usage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5}) {
		t.Fatalf("unexpected usage: %+v", created.Usage)
	}

	getRec := doJSON(t, ts.echo, http.MethodGet, "/v1/generations/"+created.ID, "")
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status: got %d", getRec.Code)
	}
	if got := decodeBody[GenerateResponse](t, getRec); got.Text != "hhh" {
		t.Fatalf("stored text: %q", got.Text)
	}

	if rec := doJSON(t, ts.echo, http.MethodDelete, "/v1/generations/"+created.ID, ""); rec.Code != http.StatusOK {
		t.Fatalf("delete status: got %d", rec.Code)
	}
	if rec := doJSON(t, ts.echo, http.MethodGet, "/v1/generations/"+created.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: got %d", rec.Code)
	}
}

func TestGenerateRejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, favour('a'), nil)
	cases := []struct {
		name  string
		body  string
		param string
	}{
		{name: "empty-body", body: ``},
		{name: "missing-prompt", body: `{}`, param: "prompt"},
		{name: "negative-budget", body: `{"prompt":"x","max_tokens":-1}`, param: "max_tokens"},
		{name: "zero-budget", body: `{"prompt":"x","max_tokens":0}`, param: "max_tokens"},
		{name: "unknown-strategy", body: `{"prompt":"x","strategy":"beam"}`, param: "strategy"},
		{name: "unknown-field", body: `{"prompt":"x","temperature":0.7}`},
		{name: "top-k-above-vocab", body: `{"prompt":"x","top_k":300}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, ts.echo, http.MethodPost, "/v1/generate", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
			}
			body := decodeBody[struct {
				Error ResponseError `json:"error"`
			}](t, rec)
			if body.Error.Type != "invalid_request_error" || body.Error.Param != tc.param {
				t.Fatalf("unexpected error: %+v", body.Error)
			}
		})
	}
}

func TestGenerateInferenceFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("onnx run failed")
	ts := newTestServer(t, inference.InferFunc(func(context.Context, []int) ([][]float32, error) {
		return nil, boom
	}), nil)

	rec := doJSON(t, ts.echo, http.MethodPost, "/v1/generate", `{"prompt":"x"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[GenerateResponse](t, rec)
	if resp.Status != "failed" || resp.Error == nil || resp.Error.Type != "inference_error" {
		t.Fatalf("unexpected failure response: %+v", resp)
	}
	if !strings.Contains(resp.Error.Message, "onnx run failed") {
		t.Fatalf("error message lost cause: %q", resp.Error.Message)
	}
}

func TestGenerateStream(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, favour('o'), nil)
	rec := doJSON(t, ts.echo, http.MethodPost, "/v1/generate", `{"prompt":"n","max_tokens":3,"strategy":"greedy","stream":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}
	body := rec.Body.String()
	if n := strings.Count(body, "event: "+EventDelta+"\n"); n != 3 {
		t.Fatalf("expected 3 delta events, got %d in %s", n, body)
	}
	for _, want := range []string{"event: " + EventCreated, "event: " + EventCompleted, `"delta":"o"`, `"sequence_number":5`} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in stream:\n%s", want, body)
		}
	}
}

func TestGenerateStreamStartingAfter(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, favour('o'), nil)
	rec := doJSON(t, ts.echo, http.MethodPost, "/v1/generate?starting_after=2", `{"prompt":"n","max_tokens":3,"strategy":"greedy","stream":true}`)
	body := rec.Body.String()
	if strings.Contains(body, EventCreated) || strings.Count(body, "event: "+EventDelta+"\n") != 2 {
		t.Fatalf("starting_after not honoured:\n%s", body)
	}
}

func TestGenerateRateLimited(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, favour('a'), func(o *Options) {
		o.RateLimit = 0.001
		o.Burst = 1
	})
	if rec := doJSON(t, ts.echo, http.MethodPost, "/v1/generate", `{"prompt":"a","max_tokens":1}`); rec.Code != http.StatusOK {
		t.Fatalf("first request: got %d", rec.Code)
	}
	rec := doJSON(t, ts.echo, http.MethodPost, "/v1/generate", `{"prompt":"a","max_tokens":1}`)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("second request: got %d", rec.Code)
	}
	// Tokenize is not limited.
	if rec := doJSON(t, ts.echo, http.MethodPost, "/v1/tokenize", `{"text":"a"}`); rec.Code != http.StatusOK {
		t.Fatalf("tokenize: got %d", rec.Code)
	}
}

func TestCancelEndpoint(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	entered := make(chan struct{})
	model := inference.InferFunc(func(ctx context.Context, w []int) ([][]float32, error) {
		if calls.Add(1) == 2 {
			close(entered)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return favour('z')(ctx, w)
	})
	ts := newTestServer(t, model, nil)

	idle := decodeBody[CancelResponse](t, doJSON(t, ts.echo, http.MethodPost, "/v1/generate/cancel", ""))
	if idle.Cancelled || idle.State != "idle" {
		t.Fatalf("idle cancel: %+v", idle)
	}

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- doJSON(t, ts.echo, http.MethodPost, "/v1/generate", `{"prompt":"a","max_tokens":5,"strategy":"greedy"}`)
	}()
	<-entered

	got := decodeBody[CancelResponse](t, doJSON(t, ts.echo, http.MethodPost, "/v1/generate/cancel", ""))
	if !got.Cancelled {
		t.Fatalf("expected an active generation to be cancelled: %+v", got)
	}

	select {
	case rec := <-done:
		resp := decodeBody[GenerateResponse](t, rec)
		if rec.Code != http.StatusOK || resp.Status != "cancelled" || resp.Text != "z" {
			t.Fatalf("cancelled generation: code=%d %+v", rec.Code, resp)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("generation did not stop after cancel")
	}
}

func TestTokenizeAndDetokenize(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, favour('a'), nil)

	rec := doJSON(t, ts.echo, http.MethodPost, "/v1/tokenize", `{"text":"hi you"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("tokenize: got %d", rec.Code)
	}
	tok := decodeBody[TokenizeResponse](t, rec)
	if tok.Count != 6 || tok.Tokens[0] != 'h' || tok.Pieces[2] != "Ġ" {
		t.Fatalf("unexpected tokenize response: %+v", tok)
	}

	rec = doJSON(t, ts.echo, http.MethodPost, "/v1/detokenize", `{"tokens":[104,105,32,121,111,117]}`)
	if got := decodeBody[DetokenizeResponse](t, rec); got.Text != "hi you" {
		t.Fatalf("detokenize: %q", got.Text)
	}

	rec = doJSON(t, ts.echo, http.MethodPost, "/v1/detokenize", `{"tokens":[1,999]}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"param":"tokens"`) {
		t.Fatalf("invalid token: got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, ts.echo, http.MethodPost, "/v1/tokenize", `{"text":""}`)
	if got := decodeBody[TokenizeResponse](t, rec); got.Count != 0 || got.Tokens == nil {
		t.Fatalf("empty text: %+v", got)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, favour('a'), nil)
	rec := doJSON(t, ts.echo, http.MethodGet, "/v1/health", "")
	got := decodeBody[HealthResponse](t, rec)
	want := HealthResponse{Status: "ok", Version: "test", Backend: "fake", VocabSize: 256, Window: 8, State: "idle"}
	if got != want {
		t.Fatalf("health: got %+v want %+v", got, want)
	}
}

func TestGenerationStoreEvicts(t *testing.T) {
	t.Parallel()

	s := NewGenerationStore(2)
	for _, id := range []string{"a", "b", "c"} {
		s.Save(GenerateResponse{ID: id})
	}
	if _, ok := s.Get("a"); ok {
		t.Fatalf("oldest entry should be evicted")
	}
	if s.Len() != 2 {
		t.Fatalf("len: got %d want 2", s.Len())
	}
}
