package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/adityalohuni/formaudit/internal/artifact"
	"github.com/adityalohuni/formaudit/internal/audit"
	"github.com/adityalohuni/formaudit/internal/i18n"
)

func TestObserveGather(t *testing.T) {
	m := New()
	m.ObserveGather(artifact.FormFieldsName, 20*time.Millisecond, nil)
	m.ObserveGather(artifact.FormFieldsName, time.Millisecond, errors.New("gone"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.gatherErrors.WithLabelValues("FormFields")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.gatherDuration))
}

func TestObserveResultsByOutcome(t *testing.T) {
	m := New()
	msg := i18n.Message{ID: "x"}
	m.ObserveResults([]audit.Result{
		{ID: "card-name", Verdict: audit.Pass()},
		{ID: "expiration", Verdict: audit.Partial(0.5, msg)},
		{ID: "cvc", Verdict: audit.NotApplicable(nil)},
		{ID: "charset", Verdict: audit.Fail(msg)},
		{ID: "card-number", Error: "missing"},
	})

	for id, outcome := range map[string]string{
		"card-name":   "pass",
		"expiration":  "partial",
		"cvc":         "not_applicable",
		"charset":     "fail",
		"card-number": "error",
	} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.verdicts.WithLabelValues(id, outcome)), id)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.SetBrowserSessions(2)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "formaudit_browser_sessions 2"))
}
