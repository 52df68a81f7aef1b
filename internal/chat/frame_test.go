package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameJSONShapes(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{"start", StartFrame("c1"), `{"type":"start","conversation_id":"c1"}`},
		{"content", ContentFrame("Hel"), `{"type":"content","chunk":"Hel"}`},
		{"error", ErrorFrame("boom"), `{"type":"error","error":"boom"}`},
		{"complete empty", CompleteFrame("c1", nil), `{"type":"complete","conversation_id":"c1","messages":[]}`},
		{
			"complete",
			CompleteFrame("c1", []Message{{Role: "user", Content: "hi"}}),
			`{"type":"complete","conversation_id":"c1","messages":[{"role":"user","content":"hi"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.frame)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))

			var back Frame
			require.NoError(t, json.Unmarshal(b, &back))
			assert.Equal(t, tt.frame.Type, back.Type)
		})
	}

	_, err := json.Marshal(Frame{Type: "bogus"})
	assert.Error(t, err)
}
