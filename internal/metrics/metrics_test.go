package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cam3ron2/commit-ingest/internal/model"
	"github.com/cam3ron2/commit-ingest/internal/webhook"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounters(t *testing.T) {
	t.Parallel()

	recorder := NewRecorder()
	recorder.ObserveEvent(webhook.ResultProcessed)
	recorder.ObserveEvent("Repo: <https://github.com/a/b> Branch: <main> is not registered in Hygieia")
	recorder.ObserveEvent("Repo: <https://github.com/c/d> Branch: <dev> is not registered in Hygieia")
	recorder.ObserveCommit(model.CommitTypeMerge)
	recorder.ObserveCommit(model.CommitTypeMerge)
	recorder.ObserveCommit(model.CommitTypeNew)
	recorder.ObserveEnrichment("found", 1)
	recorder.ObserveEnrichment("remote_api_unavailable", 3)
	recorder.ObserveEnrichment("skipped", 0)
	recorder.ObserveFailure(string(webhook.CodeRemoteUnavailable))
	recorder.ObserveDelivery("push", http.StatusOK)
	recorder.ObserveDelivery("", http.StatusNoContent)

	testCases := []struct {
		name string
		got  float64
		want float64
	}{
		{name: "processed", got: testutil.ToFloat64(recorder.events.WithLabelValues(webhook.ResultProcessed)), want: 1},
		{name: "not_registered", got: testutil.ToFloat64(recorder.events.WithLabelValues("not_registered")), want: 2},
		{name: "merge_commits", got: testutil.ToFloat64(recorder.commits.WithLabelValues("Merge")), want: 2},
		{name: "new_commits", got: testutil.ToFloat64(recorder.commits.WithLabelValues("New")), want: 1},
		{name: "found", got: testutil.ToFloat64(recorder.enrichments.WithLabelValues("found")), want: 1},
		{name: "failures", got: testutil.ToFloat64(recorder.failures.WithLabelValues("remote_api_unavailable")), want: 1},
		{name: "unknown_delivery", got: testutil.ToFloat64(recorder.deliveries.WithLabelValues("unknown", "204")), want: 1},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if tc.got != tc.want {
				t.Fatalf("counter = %v, want %v", tc.got, tc.want)
			}
		})
	}

	if got := testutil.CollectAndCount(recorder.attempts); got != 1 {
		t.Fatalf("attempts histogram series = %d, want 1", got)
	}
}

func TestOpenMetricsHandler(t *testing.T) {
	t.Parallel()

	recorder := NewRecorder()
	recorder.ObserveCommit(model.CommitTypeNotBuilt)
	recorder.ObserveFailure(string(webhook.CodeStoreFailure))

	handler := NewOpenMetricsHandler(recorder.Gatherer())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/openmetrics-text")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	wantSubstrs := []string{
		`# TYPE commit_ingest_commits counter`,
		`commit_ingest_commits_total{type="NotBuilt"} 1`,
		`commit_ingest_push_failures_total{code="store_failure"} 1`,
		"# EOF",
	}
	for _, substr := range wantSubstrs {
		if !strings.Contains(body, substr) {
			t.Fatalf("metrics output missing %q:\n%s", substr, body)
		}
	}
}
