package policy

import (
	"encoding/json"
	"testing"
)

func TestRedactorTextReplacesWholeString(t *testing.T) {
	inputs := []string{
		"Sure Maria Lopez, your account at 12 Calle Mayor, Madrid is now closed",
		"any sentence",
		"",
		`{"looks":"like json"}`,
	}
	for _, in := range inputs {
		if got := (Redactor{}).Text(in); got != Placeholder {
			t.Fatalf("Text(%q) = %q, want %q", in, got, Placeholder)
		}
	}
}

func TestRedactorJSONMasksNestedKeys(t *testing.T) {
	raw := []byte(`{"type":"open","parameters":{"conversationId":"c1","participant":{"ani":"+15551234567"},"inputVariables":{"_agent_id":"a"},"media":[{"type":"audio","variables":{"x":"y"}}]}}`)

	out := Redactor{}.JSON(raw)

	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("redacted output is not JSON: %v (%q)", err, out)
	}
	params := got["parameters"].(map[string]any)
	if params["conversationId"] != "c1" {
		t.Fatalf("conversationId = %v, want c1", params["conversationId"])
	}
	for _, key := range []string{"participant", "inputVariables"} {
		if params[key] != Placeholder {
			t.Fatalf("%s = %v, want %q", key, params[key], Placeholder)
		}
	}
	media := params["media"].([]any)[0].(map[string]any)
	if media["variables"] != Placeholder || media["type"] != "audio" {
		t.Fatalf("media = %v, want variables masked and type kept", media)
	}
}

func TestRedactorJSONReplacesNonObjects(t *testing.T) {
	for _, raw := range []string{"not json", `["a","b"]`, `"str"`, `null`} {
		if got := (Redactor{}).JSON([]byte(raw)); got != Placeholder {
			t.Fatalf("JSON(%q) = %q, want %q", raw, got, Placeholder)
		}
	}
}

func TestRedactorUnredactedPassesThrough(t *testing.T) {
	r := NewRedactor(true)
	if got := r.JSON([]byte("not json")); got != "not json" {
		t.Fatalf("JSON() = %q, want input unchanged", got)
	}
	if got := r.Text("call me at sam@example.com"); got != "call me at sam@example.com" {
		t.Fatalf("Text() = %q, want input unchanged", got)
	}
	m := map[string]any{"participant": "p"}
	if got := r.Map(m)["participant"]; got != "p" {
		t.Fatalf("Map()[participant] = %v, want p", got)
	}
}

func TestRedactorMap(t *testing.T) {
	m := map[string]any{"variables": map[string]any{"k": "v"}, "keep": 1}
	out := Redactor{}.Map(m)
	if out["variables"] != Placeholder {
		t.Fatalf("variables = %v, want %q", out["variables"], Placeholder)
	}
	if out["keep"] != 1 {
		t.Fatalf("keep = %v, want 1", out["keep"])
	}
}
