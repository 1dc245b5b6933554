package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tombee/semroute/internal/tracing"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 0

	if _, err := New(cfg); err == nil {
		t.Fatal("New() should reject a zero timeout")
	}
}

func TestNewSetsTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 7 * time.Second

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if client.Timeout != 7*time.Second {
		t.Errorf("client.Timeout = %v, want 7s", client.Timeout)
	}
}

func TestClientSetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.UserAgent = "semroute-test/1.0"
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if gotUA != "semroute-test/1.0" {
		t.Errorf("User-Agent = %q, want semroute-test/1.0", gotUA)
	}
}

func TestClientKeepsExplicitUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "caller-chosen/2.0")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if gotUA != "caller-chosen/2.0" {
		t.Errorf("User-Agent = %q, want caller-chosen/2.0", gotUA)
	}
}

func TestClientPropagatesCorrelationID(t *testing.T) {
	var gotCorr string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCorr = r.Header.Get(tracing.HeaderCorrelationID)
	}))
	defer srv.Close()

	client, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	id := tracing.NewCorrelationID()
	ctx := tracing.ToContext(context.Background(), id)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if gotCorr != id.String() {
		t.Errorf("correlation header = %q, want %q", gotCorr, id)
	}
}
