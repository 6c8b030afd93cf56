package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dwhitley/parley/internal/capability"
	"github.com/dwhitley/parley/internal/engine"
	"github.com/dwhitley/parley/internal/llm"
	"github.com/dwhitley/parley/internal/session"
)

// scriptedClient returns canned completions in order.
type scriptedClient struct {
	completions []*llm.Completion
	err         error
	calls       int
}

func (c *scriptedClient) Generate(ctx context.Context, model string, messages []llm.Message, tools []map[string]any) (*llm.Completion, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.calls >= len(c.completions) {
		return nil, fmt.Errorf("scripted client exhausted")
	}
	out := c.completions[c.calls]
	c.calls++
	return out, nil
}

func (c *scriptedClient) Ping(ctx context.Context) error { return c.err }

func reply(text string) *llm.Completion {
	return &llm.Completion{
		Model:   "test",
		Message: llm.Message{Role: llm.RoleAssistant, Content: text},
	}
}

func toolCall(name string) *llm.Completion {
	return &llm.Completion{
		Model: "test",
		Message: llm.Message{
			Role:      llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{ID: "call-1", Name: name, Arguments: map[string]any{}}},
		},
	}
}

func newTestServer(t *testing.T, client llm.Client) (*Server, *session.Store) {
	t.Helper()

	store, err := session.Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	reg := capability.NewRegistry()
	eng := engine.New(slog.Default(), client, "test", reg, engine.Options{
		SystemPrompt: "You are a test assistant.",
	})

	return NewServer("127.0.0.1", 0, eng, store, reg, client, 25, slog.Default()), store
}

func postChat(t *testing.T, h http.Handler, req ChatRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(req)
	r := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestChatNewSession(t *testing.T) {
	srv, store := newTestServer(t, &scriptedClient{completions: []*llm.Completion{reply("hello!")}})
	h := srv.Routes()

	w := postChat(t, h, ChatRequest{UserText: "hi"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID == "" {
		t.Error("no session id returned")
	}
	if resp.AssistantText != "hello!" {
		t.Errorf("assistant text = %q", resp.AssistantText)
	}

	// Committed sequence: system + user + assistant.
	sess, err := store.Get(resp.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.MessageCount != 3 {
		t.Errorf("message count = %d, want 3", sess.MessageCount)
	}
}

func TestChatContinuesSession(t *testing.T) {
	client := &scriptedClient{completions: []*llm.Completion{reply("first"), reply("second")}}
	srv, store := newTestServer(t, client)
	h := srv.Routes()

	w := postChat(t, h, ChatRequest{UserText: "one"})
	var resp ChatResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	w = postChat(t, h, ChatRequest{SessionID: resp.SessionID, UserText: "two"})
	if w.Code != http.StatusOK {
		t.Fatalf("second turn status = %d, body %s", w.Code, w.Body.String())
	}
	var resp2 ChatResponse
	json.Unmarshal(w.Body.Bytes(), &resp2)
	if resp2.SessionID != resp.SessionID {
		t.Errorf("session changed: %s -> %s", resp.SessionID, resp2.SessionID)
	}
	if resp2.AssistantText != "second" {
		t.Errorf("assistant text = %q", resp2.AssistantText)
	}

	// system + (user, assistant) x2, system prepended only once.
	msgs, err := store.Messages(resp.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want 5", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem {
		t.Errorf("first message role = %s", msgs[0].Role)
	}
	for _, m := range msgs[1:] {
		if m.Role == llm.RoleSystem {
			t.Error("duplicate system message committed")
		}
	}
}

func TestChatUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedClient{})
	w := postChat(t, srv.Routes(), ChatRequest{SessionID: "no-such-id", UserText: "hi"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestChatValidation(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedClient{})
	h := srv.Routes()

	if w := postChat(t, h, ChatRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing user_text: status = %d, want 400", w.Code)
	}
	if w := postChat(t, h, ChatRequest{UserText: "hi", RecursionLimit: -1}); w.Code != http.StatusBadRequest {
		t.Errorf("negative limit: status = %d, want 400", w.Code)
	}

	r := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d, want 400", w.Code)
	}
}

func TestChatBudgetExceeded(t *testing.T) {
	// current_time is a registered builtin, so the turn loops until the
	// budget stops it.
	client := &scriptedClient{completions: []*llm.Completion{
		toolCall("current_time"),
		toolCall("current_time"),
	}}
	srv, store := newTestServer(t, client)

	w := postChat(t, srv.Routes(), ChatRequest{UserText: "loop", RecursionLimit: 1})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body %s", w.Code, w.Body.String())
	}

	var envelope struct {
		Error struct {
			Type      string `json:"type"`
			SessionID string `json:"session_id"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Type != "budget_exceeded" {
		t.Errorf("error type = %q", envelope.Error.Type)
	}
	if envelope.Error.SessionID == "" {
		t.Fatal("no session id in error")
	}

	// The partial turn is committed: system + user + assistant tool
	// call + tool result.
	msgs, err := store.Messages(envelope.Error.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	if msgs[3].Role != llm.RoleTool {
		t.Errorf("last message role = %s, want tool", msgs[3].Role)
	}
}

func TestChatUnknownCapability(t *testing.T) {
	client := &scriptedClient{completions: []*llm.Completion{toolCall("not_registered")}}
	srv, store := newTestServer(t, client)

	w := postChat(t, srv.Routes(), ChatRequest{UserText: "hi"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}

	var envelope struct {
		Error struct {
			Type      string `json:"type"`
			SessionID string `json:"session_id"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Type != "unknown_capability" {
		t.Errorf("error type = %q", envelope.Error.Type)
	}
	if envelope.Error.SessionID == "" {
		t.Fatal("no session id in error")
	}

	// The partial turn is committed so the session stays resumable:
	// system + user + the assistant message naming the bad capability.
	msgs, err := store.Messages(envelope.Error.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[2].Role != llm.RoleAssistant {
		t.Errorf("last message role = %s, want assistant", msgs[2].Role)
	}
	if len(msgs[2].ToolCalls) != 1 || msgs[2].ToolCalls[0].Name != "not_registered" {
		t.Errorf("tool call not preserved: %+v", msgs[2].ToolCalls)
	}
}

func TestChatModelUnavailable(t *testing.T) {
	client := &scriptedClient{err: fmt.Errorf("down: %w", llm.ErrModelUnavailable)}
	srv, store := newTestServer(t, client)

	// Pre-create the session so we can check nothing is committed.
	sess, err := store.Create()
	if err != nil {
		t.Fatal(err)
	}

	w := postChat(t, srv.Routes(), ChatRequest{SessionID: sess.ID, UserText: "hi"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if !strings.Contains(w.Body.String(), "model_unavailable") {
		t.Errorf("body = %s", w.Body.String())
	}

	got, err := store.Get(sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageCount != 0 {
		t.Errorf("backend outage committed %d messages, want 0", got.MessageCount)
	}
}

func TestSessionEndpoints(t *testing.T) {
	srv, store := newTestServer(t, &scriptedClient{completions: []*llm.Completion{reply("hi there")}})
	h := srv.Routes()

	w := postChat(t, h, ChatRequest{UserText: "hello"})
	var resp ChatResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	// List
	r := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r)
	if w2.Code != http.StatusOK {
		t.Fatalf("list status = %d", w2.Code)
	}
	var list struct {
		Count int `json:"count"`
	}
	json.Unmarshal(w2.Body.Bytes(), &list)
	if list.Count != 1 {
		t.Errorf("count = %d, want 1", list.Count)
	}

	// Get
	r = httptest.NewRequest(http.MethodGet, "/v1/sessions/"+resp.SessionID, nil)
	w2 = httptest.NewRecorder()
	h.ServeHTTP(w2, r)
	if w2.Code != http.StatusOK {
		t.Fatalf("get status = %d", w2.Code)
	}
	if !strings.Contains(w2.Body.String(), "hi there") {
		t.Errorf("transcript missing reply: %s", w2.Body.String())
	}

	// Delete
	r = httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+resp.SessionID, nil)
	w2 = httptest.NewRecorder()
	h.ServeHTTP(w2, r)
	if w2.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w2.Code)
	}
	if _, err := store.Get(resp.SessionID); err == nil {
		t.Error("session still present after delete")
	}

	// Get after delete
	r = httptest.NewRequest(http.MethodGet, "/v1/sessions/"+resp.SessionID, nil)
	w2 = httptest.NewRecorder()
	h.ServeHTTP(w2, r)
	if w2.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w2.Code)
	}
}

func TestSessionExport(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedClient{completions: []*llm.Completion{reply("exported reply")}})
	h := srv.Routes()

	w := postChat(t, h, ChatRequest{UserText: "export me"})
	var resp ChatResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	r := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+resp.SessionID+"/export", nil)
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r)
	if w2.Code != http.StatusOK {
		t.Fatalf("markdown export status = %d", w2.Code)
	}
	if ct := w2.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w2.Body.String(), "exported reply") {
		t.Errorf("markdown missing reply:\n%s", w2.Body.String())
	}

	r = httptest.NewRequest(http.MethodGet, "/v1/sessions/"+resp.SessionID+"/export?format=html", nil)
	w2 = httptest.NewRecorder()
	h.ServeHTTP(w2, r)
	if w2.Code != http.StatusOK {
		t.Fatalf("html export status = %d", w2.Code)
	}
	if !strings.Contains(w2.Body.String(), "<html>") {
		t.Errorf("html export missing markup:\n%s", w2.Body.String())
	}

	r = httptest.NewRequest(http.MethodGet, "/v1/sessions/"+resp.SessionID+"/export?format=pdf", nil)
	w2 = httptest.NewRecorder()
	h.ServeHTTP(w2, r)
	if w2.Code != http.StatusBadRequest {
		t.Errorf("unsupported format status = %d, want 400", w2.Code)
	}
}

func TestCapabilitiesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedClient{})
	r := httptest.NewRequest(http.MethodGet, "/v1/capabilities", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "current_time") {
		t.Errorf("builtin missing: %s", w.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedClient{})
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "healthy" {
		t.Errorf("status field = %q", body["status"])
	}
	if body["model_backend"] != "ok" {
		t.Errorf("model_backend = %q", body["model_backend"])
	}
}

func TestExportMarkdownStripsThink(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedClient{completions: []*llm.Completion{
		reply("<think>secret reasoning</think>visible answer"),
	}})
	h := srv.Routes()

	w := postChat(t, h, ChatRequest{UserText: "hi"})
	var resp ChatResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	r := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+resp.SessionID+"/export", nil)
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r)

	if strings.Contains(w2.Body.String(), "secret reasoning") {
		t.Error("export leaked reasoning markup")
	}
	if !strings.Contains(w2.Body.String(), "visible answer") {
		t.Error("export missing visible answer")
	}
}
