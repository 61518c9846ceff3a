package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Audio encoding advertised to the dialogue service in both directions.
const (
	DialogueAudioEncoding   = "LINEAR16"
	DialogueSampleRateHertz = 16000
)

// EndSessionMarker in agent output means the agent tried to end the call
// through spoken text instead of an endSession frame.
const EndSessionMarker = "end_session"

// Info codes sent with a forced disconnect when the marker shows up in
// agent text or diagnostics.
const (
	InfoMarkerInText       = "no_params_error_1"
	InfoMarkerInDiagnostic = "no_params_error_2"
)

// SummaryParam is the endSession metadata parameter carrying output variables.
const SummaryParam = "conversation_summary"

type AudioConfig struct {
	AudioEncoding   string `json:"audioEncoding"`
	SampleRateHertz int    `json:"sampleRateHertz"`
}

type SessionConfig struct {
	Session           string      `json:"session"`
	InputAudioConfig  AudioConfig `json:"inputAudioConfig"`
	OutputAudioConfig AudioConfig `json:"outputAudioConfig"`
	Deployment        string      `json:"deployment,omitempty"`
}

type ConfigMessage struct {
	Config SessionConfig `json:"config"`
}

type RealtimeInput struct {
	Audio     string                     `json:"audio,omitempty"`
	Text      string                     `json:"text,omitempty"`
	Variables map[string]json.RawMessage `json:"variables,omitempty"`
}

type RealtimeInputMessage struct {
	RealtimeInput RealtimeInput `json:"realtimeInput"`
}

func NewConfigMessage(sessionID, deployment string) ConfigMessage {
	ac := AudioConfig{AudioEncoding: DialogueAudioEncoding, SampleRateHertz: DialogueSampleRateHertz}
	return ConfigMessage{Config: SessionConfig{
		Session:           sessionID,
		InputAudioConfig:  ac,
		OutputAudioConfig: ac,
		Deployment:        deployment,
	}}
}

func NewTextInput(text string) RealtimeInputMessage {
	return RealtimeInputMessage{RealtimeInput: RealtimeInput{Text: text}}
}

func NewVariablesInput(vars map[string]json.RawMessage) RealtimeInputMessage {
	return RealtimeInputMessage{RealtimeInput: RealtimeInput{Variables: vars}}
}

func NewAudioInput(pcm []byte) RealtimeInputMessage {
	return RealtimeInputMessage{RealtimeInput: RealtimeInput{Audio: base64.StdEncoding.EncodeToString(pcm)}}
}

// Dialogue events, one per recognised inbound frame shape.
type (
	AgentAudio struct {
		PCM []byte
	}
	AgentText struct {
		Text string
	}
	Diagnostic struct {
		// Chunks holds the raw JSON of every chunk of every message.
		Chunks []json.RawMessage
	}
	RecognitionResult struct{}
	EndSession struct {
		OutputVariables map[string]string
		Raw             json.RawMessage
	}
	Unrecognized struct {
		Raw json.RawMessage
	}
)

// ContainsEndMarker reports whether any diagnostic chunk mentions the
// end-of-session marker.
func (d Diagnostic) ContainsEndMarker() bool {
	marker := []byte(EndSessionMarker)
	for _, c := range d.Chunks {
		if bytes.Contains(bytes.ToLower(c), marker) {
			return true
		}
	}
	return false
}

type dialogueFrame struct {
	SessionOutput *struct {
		Audio          *string         `json:"audio"`
		Text           *string         `json:"text"`
		DiagnosticInfo json.RawMessage `json:"diagnosticInfo"`
	} `json:"sessionOutput"`
	RecognitionResult json.RawMessage `json:"recognitionResult"`
	EndSession        json.RawMessage `json:"endSession"`
}

// ParseDialogueMessage decodes one frame from the dialogue service into an
// event value. Shapes are tried in a fixed order: agent audio, agent text,
// diagnostics, recognition result, end of session.
func ParseDialogueMessage(raw []byte) (any, error) {
	var f dialogueFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("invalid dialogue frame: %w", err)
	}

	if so := f.SessionOutput; so != nil {
		switch {
		case so.Audio != nil:
			pcm, err := base64.StdEncoding.DecodeString(*so.Audio)
			if err != nil {
				return nil, fmt.Errorf("invalid agent audio: %w", err)
			}
			return AgentAudio{PCM: pcm}, nil
		case so.Text != nil:
			return AgentText{Text: *so.Text}, nil
		case len(so.DiagnosticInfo) > 0:
			return parseDiagnostic(so.DiagnosticInfo)
		}
	}
	if len(f.RecognitionResult) > 0 {
		return RecognitionResult{}, nil
	}
	if len(f.EndSession) > 0 {
		return EndSession{OutputVariables: summaryVariables(f.EndSession), Raw: f.EndSession}, nil
	}
	return Unrecognized{Raw: append(json.RawMessage(nil), raw...)}, nil
}

func parseDiagnostic(raw json.RawMessage) (Diagnostic, error) {
	var info struct {
		Messages []struct {
			Chunks []json.RawMessage `json:"chunks"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return Diagnostic{}, fmt.Errorf("invalid diagnostic info: %w", err)
	}
	var d Diagnostic
	for _, m := range info.Messages {
		d.Chunks = append(d.Chunks, m.Chunks...)
	}
	return d, nil
}

// summaryVariables pulls metadata.params.conversation_summary out of an
// endSession payload as a flat string map. An object summary maps key by key
// with non-string values kept as compact JSON; a string holding a JSON object
// is unpacked the same way; any other string is returned under SummaryParam.
func summaryVariables(endSession json.RawMessage) map[string]string {
	var es struct {
		Metadata struct {
			Params map[string]json.RawMessage `json:"params"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(endSession, &es); err != nil {
		return nil
	}
	summary, ok := es.Metadata.Params[SummaryParam]
	if !ok || len(summary) == 0 || string(summary) == "null" {
		return nil
	}

	if vars, ok := flattenObject(summary); ok {
		return vars
	}
	var s string
	if err := json.Unmarshal(summary, &s); err == nil {
		if vars, ok := flattenObject([]byte(s)); ok {
			return vars
		}
		return map[string]string{SummaryParam: s}
	}
	return map[string]string{SummaryParam: string(summary)}
}

func flattenObject(raw []byte) (map[string]string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, false
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			out[k] = string(v)
			continue
		}
		out[k] = buf.String()
	}
	return out, true
}
