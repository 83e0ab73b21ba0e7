package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetails_Float(t *testing.T) {
	t.Parallel()

	d := Details{
		"f":     4.5,
		"i":     7,
		"s":     " 12 ",
		"bad":   "twelve",
		"num":   json.Number("3.25"),
		"nil":   nil,
		"slice": []any{1},
	}

	tests := []struct {
		key  string
		want float64
		ok   bool
	}{
		{"f", 4.5, true},
		{"i", 7, true},
		{"s", 12, true},
		{"num", 3.25, true},
		{"bad", 0, false},
		{"nil", 0, false},
		{"slice", 0, false},
		{"missing", 0, false},
	}
	for _, tt := range tests {
		got, ok := d.Float(tt.key)
		assert.Equal(t, tt.ok, ok, tt.key)
		assert.Equal(t, tt.want, got, tt.key)
	}

	n, ok := d.Int("f")
	assert.True(t, ok)
	assert.Equal(t, int64(4), n)
}

func TestDetails_StringAndError(t *testing.T) {
	t.Parallel()

	var raw Details
	require.NoError(t, json.Unmarshal([]byte(`{"current_item":" acme.com ","total":15,"errorMessage":"boom"}`), &raw))

	assert.Equal(t, "acme.com", raw.String("current_item"))
	assert.Equal(t, "15", raw.String("total"))
	assert.Equal(t, "boom", raw.ErrorMessage())

	var empty Details
	assert.Equal(t, "", empty.String("anything"))
	assert.Equal(t, "", empty.ErrorMessage())

	assert.Equal(t, "first", Details{"error": "first", "message": "second"}.ErrorMessage())
}

func TestSnapshot_Helpers(t *testing.T) {
	t.Parallel()

	var nilSnap *Snapshot
	assert.Nil(t, nilSnap.Record(WorkflowScrape))
	assert.Zero(t, nilSnap.Count(CountEmailsReceived))
	assert.False(t, nilSnap.StatusFailed(WorkflowScrape))

	snap := &Snapshot{
		Records: map[WorkflowType]*StatusRecord{
			WorkflowScrape: {Status: "scraping"},
		},
		Counts: map[CountKey]int64{CountEmailsReceived: 40},
		Errors: []FetchError{
			{Query: "count emails_classified", Count: CountEmailsClassified, Err: errors.New("timeout")},
			{Query: "status discovery", Workflow: WorkflowDiscovery, Err: errors.New("conn reset")},
		},
	}

	assert.Equal(t, "scraping", snap.Record(WorkflowScrape).Status)
	assert.Nil(t, snap.Record(WorkflowEmailImport))
	assert.Equal(t, int64(40), snap.Count(CountEmailsReceived))
	assert.Zero(t, snap.Count(CountEmailsClassified))
	assert.Zero(t, snap.Count(""))
	assert.True(t, snap.StatusFailed(WorkflowDiscovery))
	assert.False(t, snap.StatusFailed(WorkflowScrape))
	assert.Equal(t, "status discovery: conn reset", snap.Errors[1].Error())
}

func TestView_Track(t *testing.T) {
	t.Parallel()

	v := &View{Tracks: []TrackView{
		{TrackState: TrackState{Workflow: WorkflowScrape, Badge: BadgeError}},
	}}

	tv, ok := v.Track(WorkflowScrape)
	require.True(t, ok)
	assert.True(t, tv.Failed())

	_, ok = v.Track(WorkflowDiscovery)
	assert.False(t, ok)

	var nilView *View
	_, ok = nilView.Track(WorkflowScrape)
	assert.False(t, ok)
}
