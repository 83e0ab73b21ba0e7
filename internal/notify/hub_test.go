package notify

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHub_NotifyWakesRegistered(t *testing.T) {
	h := NewHub()
	var a, b, other atomic.Int32

	unA := h.Register("ws-1", func() { a.Add(1) })
	h.Register("ws-1", func() { b.Add(1) })
	h.Register("ws-2", func() { other.Add(1) })

	assert.Equal(t, 2, h.Notify("ws-1"))
	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, int32(1), b.Load())
	assert.Equal(t, int32(0), other.Load())

	unA()
	unA()
	assert.Equal(t, 1, h.Notify("ws-1"))
	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, 2, h.Watched())
}

func TestHub_UnregisterLastRemovesWorkspace(t *testing.T) {
	h := NewHub()
	un := h.Register("ws-1", func() {})
	assert.Equal(t, 1, h.Watched())
	un()
	assert.Equal(t, 0, h.Watched())
	assert.Equal(t, 0, h.Notify("ws-1"))
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{"ws-1", "ws-1"},
		{"  ws-1\n", "ws-1"},
		{`{"workspace_id":"ws-2","table":"competitors"}`, "ws-2"},
		{`{"table":"emails"}`, ""},
		{`{not json`, ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParsePayload(tt.payload), tt.payload)
	}
}
