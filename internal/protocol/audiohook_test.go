package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseClientMessageOpen(t *testing.T) {
	raw := []byte(`{"version":"2","type":"open","id":"sess-1","seq":1,"serverseq":0,"position":"PT0S",
		"parameters":{"organizationId":"org","conversationId":"conv-1",
		"media":[{"type":"video","format":"H264","rate":90000},{"type":"audio","format":"PCMU","channels":["external"],"rate":8000}],
		"inputVariables":{"_agent_id":"projects/p/locations/us/apps/a","lang":"en"},
		"customConfig":"{\"tier\":\"gold\"}"}}`)

	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	open, ok := msg.(Open)
	if !ok {
		t.Fatalf("message type = %T, want Open", msg)
	}
	if open.ID != "sess-1" || open.Seq != 1 {
		t.Fatalf("unexpected envelope: %+v", open.Envelope)
	}
	if open.Params.ConversationID != "conv-1" {
		t.Fatalf("ConversationID = %q, want %q", open.Params.ConversationID, "conv-1")
	}
	if len(open.Params.Media) != 2 || open.Params.Media[1].Rate != 8000 {
		t.Fatalf("unexpected media: %+v", open.Params.Media)
	}
	if string(open.Params.InputVariables["lang"]) != `"en"` {
		t.Fatalf("lang = %s, want \"en\"", open.Params.InputVariables["lang"])
	}
}

func TestMediaEchoesOfferVerbatim(t *testing.T) {
	offer := `{"type":"audio","format":"PCMU","channels":["external","internal"],"rate":8000}`
	var m Media
	if err := json.Unmarshal([]byte(offer), &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	out, err := json.Marshal(OpenedParams(m))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"startPaused":false,"media":[` + offer + `]}`
	if string(out) != want {
		t.Fatalf("opened params = %s, want %s", out, want)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"wat","id":"s","seq":4}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
	env, ok := msg.(Envelope)
	if !ok || env.Seq != 4 {
		t.Fatalf("envelope = %#v, want seq 4", msg)
	}
}

func TestParseClientMessageRejectsMalformed(t *testing.T) {
	for _, raw := range []string{`{not json`, `{"type":"open","parameters":{"media":"nope"}}`} {
		if _, err := ParseClientMessage([]byte(raw)); err == nil || errors.Is(err, ErrUnsupportedType) {
			t.Fatalf("ParseClientMessage(%s) error = %v, want decode error", raw, err)
		}
	}
}

func TestParseClientMessageClose(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"version":"2","type":"close","id":"s","seq":9,"parameters":{"reason":"end"}}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	c, ok := msg.(Close)
	if !ok || c.Reason != "end" || c.Seq != 9 {
		t.Fatalf("close = %#v", msg)
	}
}

func TestServerMessageShapes(t *testing.T) {
	pong, _ := json.Marshal(ServerMessage{Version: Version, Type: TypePong, ID: "s", Seq: 2, ClientSeq: 5, Parameters: EmptyParameters{}})
	if string(pong) != `{"version":"2","type":"pong","id":"s","seq":2,"clientseq":5,"parameters":{}}` {
		t.Fatalf("pong = %s", pong)
	}
	closed, _ := json.Marshal(ServerMessage{Version: Version, Type: TypeClosed, ID: "s", Seq: 3, ClientSeq: 6})
	if string(closed) != `{"version":"2","type":"closed","id":"s","seq":3,"clientseq":6}` {
		t.Fatalf("closed = %s", closed)
	}
	disc, _ := json.Marshal(DisconnectParams(ReasonError, "Invalid JSON received", nil))
	if string(disc) != `{"reason":"error","info":"Invalid JSON received","outputVariables":{}}` {
		t.Fatalf("disconnect params = %s", disc)
	}
}
