package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestHandler(t *testing.T) {
	DocumentsProcessed.WithLabelValues("completed").Inc()
	EmbeddingFallbacks.WithLabelValues("test-model", "error").Inc()
	SearchDuration.WithLabelValues("blend").Observe(0.01)

	body := scrape(t)
	for _, want := range []string{
		`tcmkb_documents_processed_total{status="completed"}`,
		`tcmkb_embedding_fallbacks_total{model="test-model",reason="error"}`,
		`tcmkb_search_duration_seconds_count{search_type="blend"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %s", want)
		}
	}
}
