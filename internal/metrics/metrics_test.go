package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollectorsExposed(t *testing.T) {
	m := New()
	m.ObserveRead(time.Millisecond, 128)
	m.ObserveBatchCommit(2*time.Millisecond, 256)
	m.Operations.WithLabelValues("claim", "ok").Inc()
	m.Transfers.WithLabelValues("scheduled").Inc()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	res, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	text := string(body)
	for _, want := range []string{
		"paystream_storage_read_seconds",
		"paystream_storage_commit_bytes_total 256",
		`paystream_operations_total{op="claim",outcome="ok"} 1`,
		`paystream_transfers_total{outcome="scheduled"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("scrape output missing %q", want)
		}
	}
}

func TestOpResult(t *testing.T) {
	if OpResult(nil) != "ok" {
		t.Fatalf("nil error should be ok")
	}
	if OpResult(errors.New("x")) != "error" {
		t.Fatalf("error should map to error outcome")
	}
}
