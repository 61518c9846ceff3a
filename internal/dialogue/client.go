package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/antoniostano/audiohook-bridge/internal/audio"
	"github.com/antoniostano/audiohook-bridge/internal/observability"
	"github.com/antoniostano/audiohook-bridge/internal/policy"
	"github.com/antoniostano/audiohook-bridge/internal/protocol"
	"github.com/antoniostano/audiohook-bridge/internal/reliability"
)

const (
	peerLabel    = "dialogue"
	maxFrameSize = 8 << 20
	closeTimeout = time.Second
)

// ErrLocationNotFound is returned when the target identifier has no
// "locations/<location>" segment pair.
var ErrLocationNotFound = errors.New("could not extract location from target")

// TokenProvider supplies credentials for the outbound connection.
type TokenProvider interface {
	GetToken(ctx context.Context) (string, error)
	QuotaProject(ctx context.Context) string
}

// EndOfCall asks the telephony side to disconnect.
type EndOfCall struct {
	Reason          string
	Info            string
	OutputVariables map[string]string
}

type DialerConfig struct {
	// BaseURL is the endpoint without the trailing location segment.
	BaseURL          string
	KickstartText    string
	HandshakeTimeout time.Duration
	Tokens           TokenProvider
	Metrics          *observability.Metrics
	Redactor         policy.Redactor
}

// Dialer opens dialogue sessions. It is shared by all calls.
type Dialer struct {
	cfg DialerConfig
	ws  *websocket.Dialer
}

func NewDialer(cfg DialerConfig) *Dialer {
	if cfg.KickstartText == "" {
		cfg.KickstartText = "Hello"
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Dialer{
		cfg: cfg,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

type OpenRequest struct {
	// Target is the agent resource name, projects/<p>/locations/<l>/apps/<a>.
	Target     string
	Deployment string
	Variables  map[string]json.RawMessage
	Pipeline   *audio.Pipeline
	OnEnd      func(EndOfCall)
	Logger     *zap.Logger
}

// ExtractLocation returns the path segment following "locations".
func ExtractLocation(target string) (string, error) {
	parts := strings.Split(target, "/")
	for i, p := range parts {
		if p == "locations" {
			if i+1 < len(parts) && parts[i+1] != "" {
				return parts[i+1], nil
			}
			break
		}
	}
	return "", fmt.Errorf("%w: %q", ErrLocationNotFound, target)
}

// Open connects and configures one dialogue session: config frame, kickstart
// text, then the forwarded variables if any.
func (d *Dialer) Open(ctx context.Context, req OpenRequest) (*Client, error) {
	if req.Pipeline == nil {
		return nil, errors.New("dialogue open requires an audio pipeline")
	}
	log := req.Logger
	if log == nil {
		log = zap.NewNop()
	}
	started := time.Now()

	location, err := ExtractLocation(req.Target)
	if err != nil {
		return nil, err
	}
	token, err := d.cfg.Tokens.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get dialogue token: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	if project := d.cfg.Tokens.QuotaProject(ctx); project != "" {
		headers.Set("X-Goog-User-Project", project)
	}

	endpoint := d.cfg.BaseURL + "/" + location
	log.Info("connecting to dialogue service", zap.String("endpoint", endpoint))
	conn, _, err := d.ws.DialContext(ctx, endpoint, headers)
	if err != nil {
		return nil, fmt.Errorf("dial dialogue websocket: %w", err)
	}
	conn.SetReadLimit(maxFrameSize)

	c := &Client{
		conn:      conn,
		sessionID: req.Target + "/sessions/" + uuid.NewString(),
		pipeline:  req.Pipeline,
		queue:     NewQueue(),
		onEnd:     req.OnEnd,
		log:       log,
		redactor:  d.cfg.Redactor,
		metrics:   d.cfg.Metrics,
	}
	c.log = c.log.With(zap.String("dialogue_session", c.sessionID))

	if err := c.configure(req.Deployment, d.cfg.KickstartText, req.Variables); err != nil {
		_ = c.Close()
		return nil, err
	}
	d.cfg.Metrics.ObserveDialogueConnect(time.Since(started))
	c.log.Info("dialogue session configured")
	return c, nil
}

// Client is one live dialogue session.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	pipeline  *audio.Pipeline
	queue     *Queue
	onEnd     func(EndOfCall)
	log       *zap.Logger
	redactor  policy.Redactor
	metrics   *observability.Metrics

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func (c *Client) SessionID() string {
	return c.sessionID
}

// Queue holds telephony-format audio waiting to be played out.
func (c *Client) Queue() *Queue {
	return c.queue
}

func (c *Client) IsOpen() bool {
	return !c.closed.Load()
}

func (c *Client) configure(deployment, kickstart string, vars map[string]json.RawMessage) error {
	if err := c.writeJSON("config", protocol.NewConfigMessage(c.sessionID, deployment)); err != nil {
		return fmt.Errorf("send config: %w", err)
	}
	if err := c.writeJSON("text", protocol.NewTextInput(kickstart)); err != nil {
		return fmt.Errorf("send kickstart: %w", err)
	}
	if len(vars) == 0 {
		return nil
	}
	msg := protocol.NewVariablesInput(vars)
	if err := c.writeJSON("variables", msg); err != nil {
		return fmt.Errorf("send variables: %w", err)
	}
	if raw, err := json.Marshal(msg); err == nil {
		c.log.Info("sent variables to dialogue service", zap.String("message", c.redactor.JSON(raw)))
	}
	return nil
}

// SendAudio converts a telephony chunk and forwards it. The transform always
// runs so resampler state stays continuous; the frame is dropped when the
// connection is no longer open.
func (c *Client) SendAudio(chunk []byte) error {
	pcm, err := c.pipeline.Upstream.Apply(chunk)
	if err != nil {
		return fmt.Errorf("transcode caller audio: %w", err)
	}
	if len(pcm) == 0 || !c.IsOpen() {
		return nil
	}
	return c.writeJSON("audio", protocol.NewAudioInput(pcm))
}

func (c *Client) writeJSON(kind string, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		return err
	}
	c.metrics.WSMessage(peerLabel, "out", kind)
	return nil
}

// Listen reads dialogue frames until the connection ends or a frame cannot
// be decoded. It closes the audio queue on return. A nil error means the
// connection was closed in an orderly way.
func (c *Client) Listen(ctx context.Context) error {
	defer c.queue.Close()
	defer c.closed.Store(true)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || reliability.IsConnectionClosed(err) {
				c.log.Info("dialogue connection closed", zap.Int("close_code", reliability.CloseCode(err)))
				return nil
			}
			return fmt.Errorf("read dialogue frame (close code %d): %w", reliability.CloseCode(err), err)
		}

		ev, err := protocol.ParseDialogueMessage(data)
		if err != nil {
			c.log.Error("failed to decode dialogue frame", zap.Error(err))
			return err
		}
		if err := c.dispatch(ev); err != nil {
			return err
		}
	}
}

func (c *Client) dispatch(ev any) error {
	switch ev := ev.(type) {
	case protocol.AgentAudio:
		c.metrics.WSMessage(peerLabel, "in", "audio")
		out, err := c.pipeline.Downstream.Apply(ev.PCM)
		if err != nil {
			return fmt.Errorf("transcode agent audio: %w", err)
		}
		if len(out) > 0 {
			c.queue.Push(out)
		}
	case protocol.AgentText:
		c.metrics.WSMessage(peerLabel, "in", "text")
		c.log.Info("received agent text", zap.String("text", c.redactor.Text(ev.Text)))
		if strings.Contains(strings.ToLower(ev.Text), protocol.EndSessionMarker) {
			c.log.Error("end of session marker found in agent text, forcing disconnect")
			c.end(EndOfCall{Reason: protocol.ReasonCompleted, Info: protocol.InfoMarkerInText})
		}
	case protocol.Diagnostic:
		c.metrics.WSMessage(peerLabel, "in", "diagnostic")
		if ev.ContainsEndMarker() {
			c.log.Error("end of session marker found in diagnostics, forcing disconnect")
			c.end(EndOfCall{Reason: protocol.ReasonCompleted, Info: protocol.InfoMarkerInDiagnostic})
		}
	case protocol.RecognitionResult:
		c.metrics.WSMessage(peerLabel, "in", "recognition")
	case protocol.EndSession:
		c.metrics.WSMessage(peerLabel, "in", "end_session")
		c.log.Info("received end of session", zap.Int("output_variables", len(ev.OutputVariables)))
		c.end(EndOfCall{Reason: protocol.ReasonCompleted, OutputVariables: ev.OutputVariables})
	case protocol.Unrecognized:
		c.metrics.WSMessage(peerLabel, "in", "unrecognized")
		c.log.Warn("received unknown dialogue frame", zap.String("message", c.redactor.JSON(ev.Raw)))
	}
	return nil
}

func (c *Client) end(e EndOfCall) {
	if c.onEnd != nil {
		c.onEnd(e)
	}
}

// Close ends the session. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeTimeout))
		err = c.conn.Close()
	})
	return err
}
