package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/onboard-cli/internal/model"
)

func defaultRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := Default()
	require.NoError(t, err)
	return reg
}

func TestDefault_OrdersUpstreamFirst(t *testing.T) {
	reg := defaultRegistry(t)

	var order []model.WorkflowType
	for _, tbl := range reg.Tables() {
		order = append(order, tbl.Workflow)
	}
	require.Len(t, order, 3)

	pos := make(map[model.WorkflowType]int)
	for i, wf := range order {
		pos[wf] = i
	}
	assert.Less(t, pos[model.WorkflowDiscovery], pos[model.WorkflowScrape])
}

func TestTable_IndexUnknownStatusIsZero(t *testing.T) {
	reg := defaultRegistry(t)

	for _, tbl := range reg.Tables() {
		for _, status := range []string{"", "warming_up", "COMPLETE", "waiting", "totally-new-phase"} {
			assert.Equal(t, 0, tbl.Index(status), "track %s status %q", tbl.Workflow, status)
		}
	}
}

func TestTable_IndexKnownStatus(t *testing.T) {
	reg := defaultRegistry(t)
	tbl, ok := reg.Get(model.WorkflowEmailImport)
	require.True(t, ok)

	assert.Equal(t, 0, tbl.Index("pending"))
	assert.Equal(t, 2, tbl.Index("classifying"))
	assert.Equal(t, 4, tbl.Index("complete"))
}

func TestTable_TotalPhasesExcludesFailure(t *testing.T) {
	reg := defaultRegistry(t)
	tbl, _ := reg.Get(model.WorkflowDiscovery)

	assert.Len(t, tbl.Phases, 4)
	assert.Equal(t, 3, tbl.TotalPhases())
}

func TestTable_SuccessSet(t *testing.T) {
	reg := defaultRegistry(t)
	tbl, _ := reg.Get(model.WorkflowEmailImport)

	assert.True(t, tbl.IsSuccess("complete"))
	assert.True(t, tbl.IsSuccess("classification_complete"))
	assert.False(t, tbl.IsSuccess("classifying"))
	assert.Equal(t, "complete", tbl.SuccessPhase())
	assert.True(t, tbl.IsTerminal("failed"))
	assert.False(t, tbl.IsTerminal("importing"))
}

func TestTable_LabelAndBadge(t *testing.T) {
	reg := defaultRegistry(t)
	tbl, _ := reg.Get(model.WorkflowScrape)

	assert.Equal(t, "Scraping competitor websites", tbl.Label("scraping"))
	assert.Equal(t, "Deep Crawl", tbl.Label("deep_crawl"))
	assert.Equal(t, "Waiting", tbl.Label(model.StatusWaiting))

	assert.Equal(t, model.BadgePending, tbl.Badge("pending"))
	assert.Equal(t, model.BadgePending, tbl.Badge(model.StatusWaiting))
	assert.Equal(t, model.BadgeInProgress, tbl.Badge("analyzing"))
	assert.Equal(t, model.BadgeDone, tbl.Badge("complete"))
	assert.Equal(t, model.BadgeError, tbl.Badge("failed"))
}

func TestRegistry_CountKeysDeduplicated(t *testing.T) {
	reg := defaultRegistry(t)

	keys := reg.CountKeys()
	assert.ElementsMatch(t, []model.CountKey{
		model.CountCompetitorsDiscovered,
		model.CountCompetitorsScraped,
		model.CountEmailsReceived,
		model.CountEmailsClassified,
	}, keys)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "empty",
			yaml: `tracks: []`,
			want: "no tracks configured",
		},
		{
			name: "unknown upstream",
			yaml: `
tracks:
  - workflow: a
    phases: [{key: pending}, {key: done}, {key: failed}]
    success: [done]
    failure: failed
    upstream: ghost
`,
			want: "unknown track",
		},
		{
			name: "cycle",
			yaml: `
tracks:
  - workflow: a
    phases: [{key: pending}, {key: done}, {key: failed}]
    success: [done]
    failure: failed
    upstream: b
  - workflow: b
    phases: [{key: pending}, {key: done}, {key: failed}]
    success: [done]
    failure: failed
    upstream: a
`,
			want: "dependency cycle",
		},
		{
			name: "reserved waiting",
			yaml: `
tracks:
  - workflow: a
    phases: [{key: waiting}, {key: done}, {key: failed}]
    success: [done]
    failure: failed
`,
			want: "reserved phase",
		},
		{
			name: "auto trigger without upstream",
			yaml: `
tracks:
  - workflow: a
    phases: [{key: pending}, {key: done}, {key: failed}]
    success: [done]
    failure: failed
    trigger: {workflow: start-a, auto: true}
`,
			want: "requires an upstream",
		},
		{
			name: "success not in table",
			yaml: `
tracks:
  - workflow: a
    phases: [{key: pending}, {key: failed}]
    success: [done]
    failure: failed
`,
			want: "success phase",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_DefaultTitle(t *testing.T) {
	reg, err := Parse([]byte(`
tracks:
  - workflow: voice_learning
    phases: [{key: pending}, {key: done}, {key: failed}]
    success: [done]
    failure: failed
`))
	require.NoError(t, err)

	tbl, ok := reg.Get("voice_learning")
	require.True(t, ok)
	assert.Equal(t, "Voice Learning", tbl.Title)
}

func TestLoadFile_EmptyPathUsesDefaults(t *testing.T) {
	reg, err := LoadFile("")
	require.NoError(t, err)
	assert.Len(t, reg.Tables(), 3)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile("/nonexistent/phases.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phase: read")
}
