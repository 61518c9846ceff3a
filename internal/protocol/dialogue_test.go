package protocol

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMessageShape(t *testing.T) {
	out, err := json.Marshal(NewConfigMessage("projects/p/locations/us/apps/a/sessions/x", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"config":{"session":"projects/p/locations/us/apps/a/sessions/x",
		"inputAudioConfig":{"audioEncoding":"LINEAR16","sampleRateHertz":16000},
		"outputAudioConfig":{"audioEncoding":"LINEAR16","sampleRateHertz":16000}}}`, string(out))

	out, err = json.Marshal(NewConfigMessage("s", "projects/p/locations/us/apps/a/deployments/d"))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"deployment":"projects/p/locations/us/apps/a/deployments/d"`)
}

func TestRealtimeInputShapes(t *testing.T) {
	out, _ := json.Marshal(NewTextInput("Hello"))
	assert.JSONEq(t, `{"realtimeInput":{"text":"Hello"}}`, string(out))

	out, _ = json.Marshal(NewAudioInput([]byte{1, 2, 3}))
	assert.JSONEq(t, `{"realtimeInput":{"audio":"AQID"}}`, string(out))

	out, _ = json.Marshal(NewVariablesInput(map[string]json.RawMessage{"lang": json.RawMessage(`"en"`)}))
	assert.JSONEq(t, `{"realtimeInput":{"variables":{"lang":"en"}}}`, string(out))
}

func TestParseDialogueMessageVariants(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte{0, 1, 2, 3})
	cases := []struct {
		name string
		raw  string
		want any
	}{
		{"audio", `{"sessionOutput":{"audio":"` + audio + `"}}`, AgentAudio{PCM: []byte{0, 1, 2, 3}}},
		{"text", `{"sessionOutput":{"text":"How can I help?"}}`, AgentText{Text: "How can I help?"}},
		{"recognition", `{"recognitionResult":{"transcript":"hi"}}`, RecognitionResult{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDialogueMessage([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	got, err := ParseDialogueMessage([]byte(`{"somethingElse":{}}`))
	require.NoError(t, err)
	assert.IsType(t, Unrecognized{}, got)

	_, err = ParseDialogueMessage([]byte(`{"sessionOutput":{"audio":"***"}}`))
	assert.Error(t, err)
	_, err = ParseDialogueMessage([]byte(`nope`))
	assert.Error(t, err)
}

func TestDiagnosticMarker(t *testing.T) {
	got, err := ParseDialogueMessage([]byte(`{"sessionOutput":{"diagnosticInfo":{"messages":[
		{"role":"agent","chunks":[{"text":"ok"}]},
		{"role":"agent","chunks":[{"toolCall":{"tool":"END_SESSION"}}]}]}}}`))
	require.NoError(t, err)
	d, ok := got.(Diagnostic)
	require.True(t, ok)
	assert.Len(t, d.Chunks, 2)
	assert.True(t, d.ContainsEndMarker())

	got, err = ParseDialogueMessage([]byte(`{"sessionOutput":{"diagnosticInfo":{"messages":[{"chunks":["hello"]}]}}}`))
	require.NoError(t, err)
	assert.False(t, got.(Diagnostic).ContainsEndMarker())
}

func TestEndSessionSummaryShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{"object", `{"endSession":{"metadata":{"params":{"conversation_summary":{"a":"b","n":3}}}}}`, map[string]string{"a": "b", "n": "3"}},
		{"json string", `{"endSession":{"metadata":{"params":{"conversation_summary":"{\"a\":\"b\"}"}}}}`, map[string]string{"a": "b"}},
		{"plain string", `{"endSession":{"metadata":{"params":{"conversation_summary":"caller was happy"}}}}`, map[string]string{SummaryParam: "caller was happy"}},
		{"no params", `{"endSession":{"metadata":{}}}`, nil},
		{"no metadata", `{"endSession":{}}`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDialogueMessage([]byte(tc.raw))
			require.NoError(t, err)
			es, ok := got.(EndSession)
			require.True(t, ok, "type %T", got)
			assert.Equal(t, tc.want, es.OutputVariables)
		})
	}
}
