package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testReader(srv *httptest.Server) *reader {
	return &reader{
		client:     srv.Client(),
		maxContent: maxContentBytes,
	}
}

func TestReadPageBasic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><p>Hello from test server</p></body></html>"))
	}))
	defer srv.Close()

	r := testReader(srv)
	out, err := r.readPage(context.Background(), ReadPageInput{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	content, ok := out.(string)
	if !ok {
		t.Fatalf("result type %T, want string", out)
	}
	if !strings.Contains(content, "Hello from test server") {
		t.Errorf("content = %q, want page text", content)
	}
}

func TestReadPage404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
	}))
	defer srv.Close()

	r := testReader(srv)
	_, err := r.readPage(context.Background(), ReadPageInput{URL: srv.URL})
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want HTTP 404", err)
	}
}

func TestReadPageTruncation(t *testing.T) {
	big := strings.Repeat("A", 10000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(big))
	}))
	defer srv.Close()

	r := testReader(srv)
	out, err := r.readPage(context.Background(), ReadPageInput{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	content := out.(string)
	if len(content) > maxContentBytes+100 {
		t.Errorf("content not truncated: %d bytes", len(content))
	}
	if !strings.HasSuffix(content, "(truncated)") {
		t.Error("truncated content should carry a marker")
	}
}

func TestReadPageContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r := testReader(srv)
	if _, err := r.readPage(ctx, ReadPageInput{URL: srv.URL}); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestNewReadPageDefinition(t *testing.T) {
	tool := NewReadPage()
	if tool.Name() != "read_page" {
		t.Errorf("name = %q", tool.Name())
	}
	schema := string(tool.ParamsSchema())
	if !strings.Contains(schema, `"url"`) {
		t.Errorf("schema missing url property: %s", schema)
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "no markup at all", "no markup at all"},
		{"tags", "<p>one</p><p>two</p>", "one\ntwo"},
		{"script dropped", "<p>keep</p><script>var x = 1;</script><p>also</p>", "keep\nalso"},
		{"style dropped", "<style>p { color: red }</style><div>text</div>", "text"},
		{"entities", "a &amp; b &lt;c&gt;", "a & b <c>"},
		{"blank collapse", "<p>a</p>\n\n\n\n<p>b</p>", "a\n\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripHTML(tt.in); got != tt.want {
				t.Errorf("stripHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
