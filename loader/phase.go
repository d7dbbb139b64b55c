package loader

import (
	"github.com/BaSui01/millennium/bridge"
)

// Phase is the derived lifecycle phase of one plugin.
type Phase string

const (
	PhaseNotStarted         Phase = "not_started"
	PhaseConnectingBackend  Phase = "connecting_backend"
	PhaseConnectingFrontend Phase = "connecting_frontend"
	PhaseReady              Phase = "ready"
	PhaseFailed             Phase = "failed"
	PhaseStopped            Phase = "stopped"
)

// Phases lists every phase, in lifecycle order.
var Phases = []Phase{
	PhaseNotStarted,
	PhaseConnectingBackend,
	PhaseConnectingFrontend,
	PhaseReady,
	PhaseFailed,
	PhaseStopped,
}

func phaseNames() []string {
	out := make([]string, len(Phases))
	for i, p := range Phases {
		out[i] = string(p)
	}
	return out
}

// HalfState is the state of one side (backend or frontend) of a plugin.
// The zero value means the side has not been started.
type HalfState struct {
	Started bool
	State   bridge.State
}

func started(s bridge.State) HalfState {
	return HalfState{Started: true, State: s}
}

func (h HalfState) is(s bridge.State) bool {
	return h.Started && h.State == s
}

func (h HalfState) String() string {
	if !h.Started {
		return "not_started"
	}
	return h.State.String()
}

// MarshalText renders the half state by name in JSON status output.
func (h HalfState) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// DerivePhase combines the two half states into a plugin phase. Either side
// may open first. Failure on either side wins over everything else, and a
// side that was closed by shutdown marks the plugin stopped.
func DerivePhase(backend, frontend HalfState) Phase {
	switch {
	case backend.is(bridge.StateFailed) || frontend.is(bridge.StateFailed):
		return PhaseFailed
	case backend.is(bridge.StateClosed) || frontend.is(bridge.StateClosed):
		return PhaseStopped
	case !backend.Started && !frontend.Started:
		return PhaseNotStarted
	case backend.is(bridge.StateOpen) && frontend.is(bridge.StateOpen):
		return PhaseReady
	case backend.is(bridge.StateOpen):
		return PhaseConnectingFrontend
	default:
		return PhaseConnectingBackend
	}
}
