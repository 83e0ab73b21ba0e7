package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/onboard-cli/internal/model"
)

func TestNormalize_RuleOrder(t *testing.T) {
	reg := testRegistry(t)
	email, _ := reg.Get(model.WorkflowEmailImport)

	tests := []struct {
		name   string
		rec    *model.StatusRecord
		counts Ratio
		sticky bool
		want   string
		rule   Rule
	}{
		{"stale beats sticky", record(model.WorkflowEmailImport, "importing", time.Hour, nil), Ratio{}, true, "failed", RuleStale},
		{"declared failure beats sticky", record(model.WorkflowEmailImport, "failed", time.Minute, nil), Ratio{Done: 100, Total: 100}, true, "failed", RuleTerminal},
		{"sticky beats regressed declared", record(model.WorkflowEmailImport, "importing", time.Minute, nil), Ratio{}, true, "complete", RuleSticky},
		{"stale beats ratio", record(model.WorkflowEmailImport, "importing", time.Hour, nil), Ratio{Done: 100, Total: 100}, false, "failed", RuleStale},
		{"terminal failure kept", record(model.WorkflowEmailImport, "failed", time.Minute, nil), Ratio{Done: 100, Total: 100}, false, "failed", RuleTerminal},
		{"ratio at threshold", record(model.WorkflowEmailImport, "pending", time.Minute, nil), Ratio{Done: 99, Total: 100}, false, "complete", RuleRatio},
		{"zero total never ratio", record(model.WorkflowEmailImport, "importing", time.Minute, nil), Ratio{Done: 5}, false, "importing", RuleDeclared},
		{"activity from pending", record(model.WorkflowEmailImport, "pending", time.Minute, nil), Ratio{Total: 10}, false, "classifying", RuleActivity},
		{"activity without record", nil, Ratio{Total: 10, Done: 2}, false, "classifying", RuleActivity},
		{"zero counts stay pending", record(model.WorkflowEmailImport, "pending", time.Minute, nil), Ratio{}, false, "pending", RuleDeclared},
		{"no backward promotion", record(model.WorkflowEmailImport, "importing", time.Minute, nil), Ratio{Total: 10, Done: 1}, false, "importing", RuleDeclared},
		{"no record is first phase", nil, Ratio{}, false, "pending", RuleDeclared},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Normalize(Input{Table: email, Record: tt.rec, Counts: tt.counts, Now: testNow, Sticky: tt.sticky}, DefaultOptions())
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.rule, res.Rule)
		})
	}
}

func TestNormalize_DeclaredFailureAfterStickySuccess(t *testing.T) {
	reg := testRegistry(t)
	email, _ := reg.Get(model.WorkflowEmailImport)

	res := Normalize(Input{
		Table:  email,
		Record: record(model.WorkflowEmailImport, "failed", time.Minute, model.Details{"error": "quota"}),
		Counts: Ratio{Done: 991, Total: 1000},
		Now:    testNow,
		Sticky: true,
	}, DefaultOptions())

	assert.Equal(t, "failed", res.Status)
	if assert.NotNil(t, res.Error) {
		assert.Equal(t, model.ErrorDeclared, res.Error.Kind)
		assert.Equal(t, "quota", res.Error.Message)
	}
}

func TestNormalize_UpstreamTotalIsNotActivity(t *testing.T) {
	reg := testRegistry(t)
	scrape, _ := reg.Get(model.WorkflowScrape)
	require.True(t, scrape.Counts.UpstreamTotal)

	tests := []struct {
		name   string
		counts Ratio
		want   string
		rule   Rule
	}{
		{"discovered only", Ratio{Total: 15}, "pending", RuleDeclared},
		{"first competitor scraped", Ratio{Done: 1, Total: 15}, "scraping", RuleActivity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Normalize(Input{Table: scrape, Counts: tt.counts, Now: testNow}, DefaultOptions())
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.rule, res.Rule)
		})
	}
}

func TestRatio_Observed(t *testing.T) {
	assert.True(t, Ratio{Total: 500}.Observed(false))
	assert.False(t, Ratio{Total: 500}.Observed(true))
	assert.True(t, Ratio{Done: 1, Total: 500}.Observed(true))
	assert.False(t, Ratio{}.Observed(false))
}

func TestNormalize_CustomThresholds(t *testing.T) {
	reg := testRegistry(t)
	email, _ := reg.Get(model.WorkflowEmailImport)
	opts := Options{StaleAfter: 2 * time.Minute, CompletionThreshold: 0.5}

	res := Normalize(Input{
		Table:  email,
		Record: record(model.WorkflowEmailImport, "classifying", time.Minute, nil),
		Counts: Ratio{Done: 5, Total: 10},
		Now:    testNow,
	}, opts)
	assert.Equal(t, "complete", res.Status)

	res = Normalize(Input{
		Table:  email,
		Record: record(model.WorkflowEmailImport, "classifying", 3*time.Minute, nil),
		Now:    testNow,
	}, opts)
	assert.Equal(t, "failed", res.Status)
	assert.Contains(t, res.Error.Message, "2 minutes")
}

func TestIsStale_Boundary(t *testing.T) {
	reg := testRegistry(t)
	scrape, _ := reg.Get(model.WorkflowScrape)

	assert.False(t, IsStale(scrape, record(model.WorkflowScrape, "scraping", 10*time.Minute, nil), testNow, DefaultStaleAfter))
	assert.True(t, IsStale(scrape, record(model.WorkflowScrape, "scraping", 10*time.Minute+time.Second, nil), testNow, DefaultStaleAfter))
	assert.False(t, IsStale(scrape, nil, testNow, DefaultStaleAfter))
	assert.False(t, IsStale(scrape, &model.StatusRecord{Status: "scraping"}, testNow, DefaultStaleAfter))
}

func TestDeclaredError_Fallback(t *testing.T) {
	err := declaredError(&model.StatusRecord{Status: "failed"})
	assert.Equal(t, model.ErrorDeclared, err.Kind)
	assert.NotEmpty(t, err.Message)
}
