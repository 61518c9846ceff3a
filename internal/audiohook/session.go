package audiohook

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/antoniostano/audiohook-bridge/internal/audio"
	"github.com/antoniostano/audiohook-bridge/internal/dialogue"
	"github.com/antoniostano/audiohook-bridge/internal/observability"
	"github.com/antoniostano/audiohook-bridge/internal/pacer"
	"github.com/antoniostano/audiohook-bridge/internal/policy"
	"github.com/antoniostano/audiohook-bridge/internal/protocol"
	"github.com/antoniostano/audiohook-bridge/internal/reliability"
	"github.com/antoniostano/audiohook-bridge/internal/session"
)

// Info strings sent with error disconnects.
const (
	InfoInvalidDeployment   = "Invalid _deployment_id format"
	InfoMissingTarget       = "Missing required parameter: _agent_id or _deployment_id"
	InfoNoCompatibleMedia   = "No compatible audio media offered."
	InfoInvalidJSON         = "Invalid JSON received"
	InfoDialogueUnavailable = "Unable to open dialogue session"
	InfoDialogueLost        = "Dialogue session ended unexpectedly"
)

type State int

const (
	StateAwaitingOpen State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingOpen:
		return "awaiting_open"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Deps are the process-wide collaborators shared by every call.
type Deps struct {
	Dialer   *dialogue.Dialer
	Calls    *session.Manager
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Redactor policy.Redactor
}

// Session runs one inbound AudioHook connection and the dialogue session
// it is bridged to.
type Session struct {
	deps Deps
	ws   *websocket.Conn
	conn *Conn
	log  *zap.Logger
	call *session.Call

	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the read loop.
	dialogue *dialogue.Client
	tasks    errgroup.Group

	mu           sync.Mutex
	state        State
	disconnected bool
	endVars      map[string]string
}

func NewSession(ws *websocket.Conn, remoteAddr string, deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Calls == nil {
		deps.Calls = session.NewManager(0)
	}
	s := &Session{
		deps: deps,
		ws:   ws,
		conn: NewConn(ws, deps.Metrics),
	}
	s.call = deps.Calls.Create(remoteAddr, func() { _ = ws.Close() })
	s.log = deps.Logger.With(zap.String("call_id", s.call.ID), zap.String("remote_addr", remoteAddr))
	return s
}

func (s *Session) ID() string {
	return s.call.ID
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Run reads telephony frames until the connection ends or the call is
// closed, then tears down the dialogue side and waits for the call's
// background tasks.
func (s *Session) Run(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.deps.Metrics.CallStarted()
	s.deps.Metrics.CallEvent("accepted")
	defer s.shutdown()

	for {
		mt, data, err := s.ws.ReadMessage()
		if err != nil {
			if reliability.IsConnectionClosed(err) || s.ctx.Err() != nil {
				s.log.Info("telephony connection closed")
				return nil
			}
			s.log.Warn("telephony read failed",
				zap.Int("close_code", reliability.CloseCode(err)),
				zap.Error(err),
			)
			return err
		}
		_ = s.deps.Calls.Touch(s.call.ID)

		switch mt {
		case websocket.TextMessage:
			s.handleText(data)
		case websocket.BinaryMessage:
			s.handleBinary(data)
		}
		if s.State() == StateClosed {
			return nil
		}
	}
}

func (s *Session) shutdown() {
	s.setState(StateClosed)
	s.cancel()
	if s.dialogue != nil {
		_ = s.dialogue.Close()
	}
	if err := s.tasks.Wait(); err != nil {
		s.log.Warn("call task ended with error", zap.Error(err))
	}
	if s.dialogue != nil {
		if n := s.dialogue.Queue().Len(); n > 0 {
			s.log.Info("discarded unplayed agent audio", zap.Int("chunks", n))
		}
	}
	_ = s.conn.Close()
	_, _ = s.deps.Calls.End(s.call.ID)
	s.deps.Metrics.CallEnded()
	s.deps.Metrics.CallEvent("ended")
	s.log.Info("call ended", zap.Int64("server_seq", s.conn.ServerSeq()))
}

func (s *Session) handleText(data []byte) {
	s.log.Info("received telephony message", zap.String("message", s.deps.Redactor.JSON(data)))

	msg, err := protocol.ParseClientMessage(data)
	if err != nil && !errors.Is(err, protocol.ErrUnsupportedType) {
		s.log.Error("error decoding telephony message", zap.Error(err))
		s.deps.Metrics.WSMessage(peerLabel, "in", "malformed")
		s.disconnect(protocol.ReasonError, InfoInvalidJSON, nil)
		return
	}

	env := envelopeOf(msg)
	s.conn.Observe(env.ID, env.Seq)
	s.deps.Metrics.WSMessage(peerLabel, "in", string(env.Type))
	if err != nil {
		s.log.Warn("ignoring unsupported telephony message", zap.String("type", string(env.Type)))
		return
	}

	switch m := msg.(type) {
	case protocol.Open:
		s.handleOpen(m)
	case protocol.Ping:
		s.handlePing()
	case protocol.Close:
		s.handleClose(m)
	case protocol.Update:
		s.log.Info("received update message")
	}
}

func envelopeOf(msg any) protocol.Envelope {
	switch m := msg.(type) {
	case protocol.Open:
		return m.Envelope
	case protocol.Ping:
		return m.Envelope
	case protocol.Close:
		return m.Envelope
	case protocol.Update:
		return m.Envelope
	case protocol.Envelope:
		return m
	default:
		return protocol.Envelope{}
	}
}

func (s *Session) handleOpen(m protocol.Open) {
	if st := s.State(); st != StateAwaitingOpen {
		s.log.Warn("ignoring open in unexpected state", zap.Stringer("state", st))
		return
	}
	s.log = s.log.With(
		zap.String("conversation_id", m.Params.ConversationID),
		zap.String("client_session_id", m.ID),
	)
	s.logCustomConfig(m.Params.CustomConfig)

	target, err := ResolveTarget(m.Params.InputVariables)
	if err != nil {
		s.log.Error("cannot route call", zap.Error(err))
		s.disconnect(protocol.ReasonError, infoFor(err), nil)
		return
	}
	media, err := SelectMedia(m.Params.Media)
	if err != nil {
		s.log.Error("cannot negotiate media", zap.Error(err))
		s.disconnect(protocol.ReasonError, InfoNoCompatibleMedia, nil)
		return
	}
	_ = s.deps.Calls.Identify(s.call.ID, m.ID, m.Params.ConversationID, target.AgentID)

	client, err := s.deps.Dialer.Open(s.ctx, dialogue.OpenRequest{
		Target:     target.AgentID,
		Deployment: target.DeploymentID,
		Variables:  target.Variables,
		Pipeline:   audio.NewPipeline(),
		OnEnd:      s.handleDialogueEnd,
		Logger:     s.log,
	})
	if err != nil {
		s.log.Error("failed to open dialogue session", zap.Error(err))
		s.disconnect(protocol.ReasonError, InfoDialogueUnavailable, nil)
		return
	}
	s.dialogue = client

	s.setState(StateActive)
	if _, err := s.conn.SendControl(protocol.TypeOpened, protocol.OpenedParams(media)); err != nil {
		s.log.Error("failed to send opened", zap.Error(err))
	}
	s.deps.Metrics.CallEvent("opened")
	s.log.Info("telephony session opened", zap.String("target", target.AgentID))

	s.tasks.Go(func() error { return s.listen(client) })
	s.tasks.Go(func() error {
		return pacer.New(client.Queue(), s.conn, s.log, s.deps.Metrics).Run(s.ctx)
	})
}

func infoFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidDeployment):
		return InfoInvalidDeployment
	case errors.Is(err, ErrNoCompatibleMedia):
		return InfoNoCompatibleMedia
	default:
		return InfoMissingTarget
	}
}

func (s *Session) logCustomConfig(raw json.RawMessage) {
	if len(raw) == 0 || string(raw) == "null" {
		return
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if text == "" {
			return
		}
		raw = json.RawMessage(text)
	}

	s.log.Info("found customConfig")
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		s.log.Error("error decoding customConfig JSON", zap.String("custom_config", s.deps.Redactor.JSON(raw)), zap.Error(err))
		return
	}
	cfg, ok := decoded.(map[string]any)
	if !ok {
		s.log.Warn("customConfig is not a key-value object", zap.String("custom_config", s.deps.Redactor.JSON(raw)))
		return
	}
	cfg = s.deps.Redactor.Map(cfg)
	for _, k := range slices.Sorted(maps.Keys(cfg)) {
		s.log.Info("customConfig entry", zap.String("key", k), zap.Any("value", cfg[k]))
	}
}

func (s *Session) handlePing() {
	if st := s.State(); st != StateActive {
		s.log.Warn("ignoring ping in unexpected state", zap.Stringer("state", st))
		return
	}
	if _, err := s.conn.SendControl(protocol.TypePong, protocol.EmptyParameters{}); err != nil {
		s.log.Warn("failed to send pong", zap.Error(err))
	}
}

func (s *Session) handleClose(m protocol.Close) {
	s.log.Info("telephony requested close", zap.String("reason", m.Reason))
	if _, err := s.conn.SendControl(protocol.TypeClosed, nil); err != nil {
		s.log.Warn("failed to send closed", zap.Error(err))
	}

	s.mu.Lock()
	handoff := !s.disconnected && s.state == StateActive
	vars := s.endVars
	s.mu.Unlock()
	if handoff {
		s.disconnect(protocol.ReasonCompleted, "", vars)
	}
	s.setState(StateClosed)
}

func (s *Session) handleBinary(data []byte) {
	if s.dialogue == nil {
		return
	}
	if err := s.dialogue.SendAudio(data); err != nil {
		s.log.Warn("failed to forward caller audio", zap.Error(err))
	}
}

// handleDialogueEnd runs on the listener goroutine.
func (s *Session) handleDialogueEnd(e dialogue.EndOfCall) {
	if e.OutputVariables != nil {
		s.mu.Lock()
		s.endVars = e.OutputVariables
		s.mu.Unlock()
	}
	s.disconnect(e.Reason, e.Info, e.OutputVariables)
}

func (s *Session) listen(client *dialogue.Client) error {
	err := client.Listen(s.ctx)
	if err != nil {
		s.log.Error("dialogue listener stopped", zap.Error(err))
	}
	if s.ctx.Err() == nil && s.State() == StateActive {
		s.mu.Lock()
		vars := s.endVars
		s.mu.Unlock()
		s.disconnect(protocol.ReasonError, InfoDialogueLost, vars)
	}
	return err
}

// disconnect sends the single disconnect frame a call may carry and moves
// the session to closing.
func (s *Session) disconnect(reason, info string, vars map[string]string) {
	s.mu.Lock()
	if s.disconnected || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.disconnected = true
	s.state = StateClosing
	s.mu.Unlock()

	seq, err := s.conn.SendControl(protocol.TypeDisconnect, protocol.DisconnectParams(reason, info, vars))
	if err != nil {
		s.log.Warn("failed to send disconnect", zap.Error(err))
		return
	}
	s.deps.Metrics.Disconnect(reason)
	s.log.Info("sent disconnect",
		zap.String("reason", reason),
		zap.String("info", info),
		zap.Int64("seq", seq),
		zap.Int("output_variables", len(vars)),
	)
}
