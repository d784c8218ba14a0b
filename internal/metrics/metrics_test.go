package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	m := New()
	if m.StatementsTotal == nil {
		t.Error("expected StatementsTotal to be initialized")
	}
	if m.IndexSelfHealTotal == nil {
		t.Error("expected IndexSelfHealTotal to be initialized")
	}
}

func TestObserveStatement(t *testing.T) {
	m := New()
	m.ObserveStatement("select", 5*time.Millisecond, nil)
	m.ObserveStatement("insert", time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(m.StatementsTotal.WithLabelValues("select")); got != 1 {
		t.Errorf("expected 1 select statement, got %v", got)
	}
	if got := testutil.ToFloat64(m.StatementErrorsTotal.WithLabelValues("insert")); got != 1 {
		t.Errorf("expected 1 insert error, got %v", got)
	}
	if got := testutil.ToFloat64(m.StatementErrorsTotal.WithLabelValues("select")); got != 0 {
		t.Errorf("expected 0 select errors, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveStatement("select", time.Millisecond, nil)
	m.IndexSelfHealTotal.WithLabelValues("users").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), "skepadb_statements_total") {
		t.Error("expected output to contain skepadb_statements_total")
	}
	if !strings.Contains(string(body), "skepadb_index_self_heal_total") {
		t.Error("expected output to contain skepadb_index_self_heal_total")
	}
}
