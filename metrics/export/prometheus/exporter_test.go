package prometheus

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pharmalens/dashauth"
)

type fakeSource struct {
	snapshot dashauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() dashauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

type countingSource struct {
	fakeSource
	sessions int
	err      error
}

func (c countingSource) ActiveSessionCount(context.Context) (int, error) { return c.sessions, c.err }

func sampleSnapshot() dashauth.MetricsSnapshot {
	return dashauth.MetricsSnapshot{
		Counters: map[dashauth.MetricID]uint64{
			dashauth.MetricLoginSuccess: 7,
			dashauth.MetricMailFailure:  1,
		},
		Histograms: map[dashauth.MetricID][]uint64{
			dashauth.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
		},
	}
}

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: dashauth.MetricsSnapshot{
			Counters:   map[dashauth.MetricID]uint64{},
			Histograms: map[dashauth.MetricID][]uint64{},
		},
	})

	if got := exp.Render(context.Background()); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderCountersAndHistogram(t *testing.T) {
	exp := NewExporter(fakeSource{snapshot: sampleSnapshot(), dropped: 2})

	out := exp.Render(context.Background())
	for _, want := range []string{
		"# TYPE dashauth_login_success_total counter",
		"dashauth_login_success_total 7",
		"dashauth_mail_failure_total 1",
		"dashauth_logout_total 0",
		"# TYPE dashauth_validate_latency_seconds histogram",
		`dashauth_validate_latency_seconds_bucket{le="0.005"} 1`,
		`dashauth_validate_latency_seconds_bucket{le="+Inf"} 36`,
		"dashauth_validate_latency_seconds_count 36",
		"dashauth_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "dashauth_hash_latency_seconds") {
		t.Fatalf("histogram without samples must be omitted:\n%s", out)
	}
	if strings.Contains(out, "dashauth_active_sessions") {
		t.Fatalf("gauge rendered for a source that cannot count sessions:\n%s", out)
	}
}

func TestRenderActiveSessions(t *testing.T) {
	exp := NewExporter(countingSource{fakeSource: fakeSource{snapshot: sampleSnapshot()}, sessions: 4})
	out := exp.Render(context.Background())
	if !strings.Contains(out, "# TYPE dashauth_active_sessions gauge\ndashauth_active_sessions 4\n") {
		t.Fatalf("expected active sessions gauge, got:\n%s", out)
	}

	exp = NewExporter(countingSource{fakeSource: fakeSource{snapshot: sampleSnapshot()}, err: errors.New("down")})
	out = exp.Render(context.Background())
	if strings.Contains(out, "dashauth_active_sessions") {
		t.Fatalf("gauge must be skipped when counting fails:\n%s", out)
	}
	if !strings.Contains(out, "dashauth_login_success_total 7") {
		t.Fatalf("counters must survive a failed session count:\n%s", out)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	srv := httptest.NewServer(NewExporter(fakeSource{snapshot: sampleSnapshot()}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain; version=0.0.4") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "dashauth_login_success_total 7") {
		t.Fatalf("unexpected body:\n%s", body)
	}
}

func TestEscapeHelp(t *testing.T) {
	if got := escapeHelp("a\\b\nc"); got != `a\\b\nc` {
		t.Fatalf("escapeHelp = %q", got)
	}
}
