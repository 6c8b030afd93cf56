package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractHTML(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head><title>Test Page</title></head>
<body>
<nav>Navigation stuff</nav>
<script>var x = 1;</script>
<style>.foo { color: red; }</style>
<main>
<h1>Hello World</h1>
<p>This is a test paragraph with <strong>bold text</strong>.</p>
<p>Second paragraph.</p>
</main>
<footer>Footer stuff</footer>
</body>
</html>`

	title, content := extractHTML(page)

	if title != "Test Page" {
		t.Errorf("title = %q, want Test Page", title)
	}
	if !strings.Contains(content, "Hello World") {
		t.Errorf("content missing heading: %q", content)
	}
	if !strings.Contains(content, "bold text") {
		t.Errorf("content missing inline text: %q", content)
	}
	for _, boilerplate := range []string{"var x = 1", "Navigation stuff", "Footer stuff", "color: red"} {
		if strings.Contains(content, boilerplate) {
			t.Errorf("content should not contain %q", boilerplate)
		}
	}
}

func TestFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "Parley/") {
			t.Errorf("User-Agent = %q, want Parley/ prefix", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Test</title></head><body><p>Hello from test server</p></body></html>`))
	}))
	defer ts.Close()

	f := New()
	result, err := f.Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if result.Title != "Test" {
		t.Errorf("title = %q, want Test", result.Title)
	}
	if !strings.Contains(result.Content, "Hello from test server") {
		t.Errorf("content = %q", result.Content)
	}
	if result.StatusCode != 200 {
		t.Errorf("status = %d, want 200", result.StatusCode)
	}
}

func TestFetchPlainText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Just plain text content"))
	}))
	defer ts.Close()

	f := New()
	result, err := f.Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result.Content != "Just plain text content" {
		t.Errorf("content = %q", result.Content)
	}
}

func TestFetchTruncation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer ts.Close()

	f := New()
	result, err := f.Fetch(context.Background(), ts.URL, 100)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !result.Truncated {
		t.Error("expected truncated=true")
	}
	if result.Length > 100 {
		t.Errorf("length = %d, want <= 100", result.Length)
	}
}

func TestFetchEmptyURL(t *testing.T) {
	f := New()
	if _, err := f.Fetch(context.Background(), "", 0); err == nil {
		t.Error("expected error for empty URL")
	}
}

func TestCollapseWhitespace(t *testing.T) {
	input := "  Hello   world  \n\n\n\n  Second line  \n\n\n Third  "
	got := collapseWhitespace(input)
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("triple newlines survived: %q", got)
	}
	if !strings.HasPrefix(got, "Hello world") {
		t.Errorf("inner spaces not collapsed: %q", got)
	}
}

func TestTruncateUTF8(t *testing.T) {
	s := "Héllo wörld café"
	truncated := truncateUTF8(s, 5)
	if n := len([]rune(truncated)); n > 5 {
		t.Errorf("got %d runes, want at most 5: %q", n, truncated)
	}
}

func TestCapabilityHandler(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Tool Test</title></head><body><p>Content here</p></body></html>`))
	}))
	defer ts.Close()

	cap := Capability(New())
	if cap.Name != "fetch_url" {
		t.Errorf("capability name = %q, want fetch_url", cap.Name)
	}

	result, err := cap.Handler(context.Background(), map[string]any{"url": ts.URL})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if !strings.Contains(result, "Content here") {
		t.Errorf("result = %q", result)
	}
	if !strings.Contains(result, "Title: Tool Test") {
		t.Errorf("result missing title header: %q", result)
	}

	if _, err := cap.Handler(context.Background(), map[string]any{}); err == nil {
		t.Error("missing url should error")
	}
}
