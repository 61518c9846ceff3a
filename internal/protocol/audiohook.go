package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies AudioHook control frame variants.
type MessageType string

const (
	TypeOpen       MessageType = "open"
	TypeOpened     MessageType = "opened"
	TypePing       MessageType = "ping"
	TypePong       MessageType = "pong"
	TypeClose      MessageType = "close"
	TypeClosed     MessageType = "closed"
	TypeUpdate     MessageType = "update"
	TypeDisconnect MessageType = "disconnect"
)

// Version is the AudioHook protocol version spoken by the bridge.
const Version = "2"

// Disconnect reasons.
const (
	ReasonCompleted = "completed"
	ReasonError     = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

// Envelope carries the header fields shared by every client frame.
type Envelope struct {
	Version    string          `json:"version"`
	Type       MessageType     `json:"type"`
	ID         string          `json:"id"`
	Seq        int64           `json:"seq"`
	ServerSeq  int64           `json:"serverseq"`
	Position   string          `json:"position,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// Media describes one offered or accepted media format. The offer is echoed
// back byte for byte when accepted.
type Media struct {
	Type     string
	Format   string
	Channels []string
	Rate     int

	raw json.RawMessage
}

func (m *Media) UnmarshalJSON(data []byte) error {
	var fields struct {
		Type     string   `json:"type"`
		Format   string   `json:"format"`
		Channels []string `json:"channels"`
		Rate     float64  `json:"rate"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	m.Type = fields.Type
	m.Format = fields.Format
	m.Channels = fields.Channels
	m.Rate = int(fields.Rate)
	m.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (m Media) MarshalJSON() ([]byte, error) {
	if len(m.raw) > 0 {
		return m.raw, nil
	}
	return json.Marshal(struct {
		Type     string   `json:"type"`
		Format   string   `json:"format"`
		Channels []string `json:"channels,omitempty"`
		Rate     int      `json:"rate"`
	}{m.Type, m.Format, m.Channels, m.Rate})
}

// OpenParameters are the fields of an open frame the bridge consumes.
type OpenParameters struct {
	OrganizationID string                     `json:"organizationId"`
	ConversationID string                     `json:"conversationId"`
	Language       string                     `json:"language,omitempty"`
	Media          []Media                    `json:"media"`
	InputVariables map[string]json.RawMessage `json:"inputVariables"`
	CustomConfig   json.RawMessage            `json:"customConfig,omitempty"`
}

type Open struct {
	Envelope
	Params OpenParameters
}

type Ping struct {
	Envelope
}

type Close struct {
	Envelope
	Reason string
}

type Update struct {
	Envelope
}

// ParseClientMessage decodes a text frame from the telephony side. Unknown
// types decode their envelope and return ErrUnsupportedType alongside it.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeOpen:
		msg := Open{Envelope: env}
		if len(env.Parameters) > 0 {
			if err := json.Unmarshal(env.Parameters, &msg.Params); err != nil {
				return nil, fmt.Errorf("invalid open parameters: %w", err)
			}
		}
		return msg, nil
	case TypePing:
		return Ping{Envelope: env}, nil
	case TypeClose:
		msg := Close{Envelope: env}
		if len(env.Parameters) > 0 {
			var p struct {
				Reason string `json:"reason"`
			}
			if err := json.Unmarshal(env.Parameters, &p); err == nil {
				msg.Reason = p.Reason
			}
		}
		return msg, nil
	case TypeUpdate:
		return Update{Envelope: env}, nil
	default:
		return env, ErrUnsupportedType
	}
}

// ServerMessage is a control frame sent to the telephony side.
type ServerMessage struct {
	Version    string      `json:"version"`
	Type       MessageType `json:"type"`
	ID         string      `json:"id"`
	Seq        int64       `json:"seq"`
	ClientSeq  int64       `json:"clientseq"`
	Parameters any         `json:"parameters,omitempty"`
}

type OpenedParameters struct {
	StartPaused bool    `json:"startPaused"`
	Media       []Media `json:"media"`
}

type DisconnectParameters struct {
	Reason          string            `json:"reason"`
	Info            string            `json:"info,omitempty"`
	OutputVariables map[string]string `json:"outputVariables"`
}

func OpenedParams(media Media) OpenedParameters {
	return OpenedParameters{StartPaused: false, Media: []Media{media}}
}

func DisconnectParams(reason, info string, outputVariables map[string]string) DisconnectParameters {
	if outputVariables == nil {
		outputVariables = map[string]string{}
	}
	return DisconnectParameters{Reason: reason, Info: info, OutputVariables: outputVariables}
}

// EmptyParameters marshals as {}.
type EmptyParameters struct{}
