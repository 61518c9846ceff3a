package audiohook

import (
	"encoding/json"
	"errors"
	"strings"
)

// Reserved input variables. Keys with the reserved prefix are consumed by
// the bridge and never forwarded to the agent.
const (
	varDeploymentID   = "_deployment_id"
	varAgentID        = "_agent_id"
	reservedVarPrefix = "_"
)

var (
	ErrInvalidDeployment = errors.New("invalid _deployment_id format")
	ErrMissingTarget     = errors.New("missing _agent_id or _deployment_id")
	ErrNoCompatibleMedia = errors.New("no compatible audio media offered")
)

// Target is where a call is routed on the dialogue side.
type Target struct {
	AgentID      string
	DeploymentID string
	Variables    map[string]json.RawMessage
}

// ResolveTarget reads the routing variables of an open frame. A deployment
// name projects/<p>/locations/<l>/apps/<a>/deployments/<d> takes precedence
// and its first six segments become the agent; otherwise _agent_id is used
// as given.
func ResolveTarget(vars map[string]json.RawMessage) (Target, error) {
	var t Target

	if raw, ok := vars[varDeploymentID]; ok {
		var dep string
		if err := json.Unmarshal(raw, &dep); err != nil {
			return Target{}, ErrInvalidDeployment
		}
		parts := strings.Split(dep, "/")
		if len(parts) != 8 || parts[6] != "deployments" {
			return Target{}, ErrInvalidDeployment
		}
		t.DeploymentID = dep
		t.AgentID = strings.Join(parts[:6], "/")
	} else if raw, ok := vars[varAgentID]; ok {
		var agent string
		if err := json.Unmarshal(raw, &agent); err == nil {
			t.AgentID = agent
		}
	}
	if t.AgentID == "" {
		return Target{}, ErrMissingTarget
	}

	for k, v := range vars {
		if strings.HasPrefix(k, reservedVarPrefix) {
			continue
		}
		if t.Variables == nil {
			t.Variables = make(map[string]json.RawMessage)
		}
		t.Variables[k] = v
	}
	return t, nil
}
