package websocket

import (
	"time"

	"golang.org/x/time/rate"
)

// ConnState identifies which of the three states (spec.md §3) the
// StateMachine currently occupies.
type ConnState int

const (
	StateOpen ConnState = iota
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ActionKind identifies what the StateMachine wants its caller (the
// ConnectionCore) to do in response to an input, keeping the FSM itself
// free of side effects per spec.md §9.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionSendClose
	ActionSendPing
	ActionSendPong
	ActionCloseConnection
	ActionWait
	ActionStop
)

// Action is the (possibly no-op) output of a single StateMachine input
// method call (Close, ReceivedClose, ForceClose, SendPing, ReceivedPing).
type Action struct {
	Kind       ActionKind
	CloseFrame CloseFrame
	Payload    []byte // ping/pong payload
}

// StateMachine implements the FSM of spec.md §4.4. It is strictly serial:
// callers must serialize calls to its input methods themselves (ConnectionCore does this
// by running the reader, writer and ping timer on one designated
// execution context, or behind a mutex per spec.md §5).
type StateMachine struct {
	state ConnState

	lastPingTime        time.Time
	outstandingPing     []byte // 16-byte nonce, reused across pings
	outstandingPingSent bool

	observedClose *CloseFrame

	// pingLimiter caps automatic pings at one per half of the configured
	// period (burst of one): a SendPing call that finds no token returns
	// ActionWait even when no ping is outstanding. The limit is derived
	// from the period, so a very short period yields an equally short
	// limit. This borrows the teacher's use of golang.org/x/time for
	// server-side slow-consumer protection and applies it to outbound
	// pings.
	pingLimiter *rate.Limiter
	period      time.Duration
}

// NewStateMachine builds a StateMachine in the Open state.
func NewStateMachine(autoPing AutoPingSetup) *StateMachine {
	sm := &StateMachine{
		state:           StateOpen,
		outstandingPing: make([]byte, 16),
	}
	if autoPing.Enabled {
		sm.period = autoPing.Period
		if sm.period <= 0 {
			sm.period = time.Second
		}
		sm.pingLimiter = rate.NewLimiter(rate.Every(sm.period/2), 1)
	}
	return sm
}

// State returns the current state.
func (sm *StateMachine) State() ConnState { return sm.state }

// ObservedClose returns the close frame recorded when the machine entered
// Closed, or nil if no close frame was ever observed (e.g. a transport
// error cut the connection).
func (sm *StateMachine) ObservedClose() *CloseFrame { return sm.observedClose }

// Close drives the local-initiated close input of spec.md §4.4's table.
func (sm *StateMachine) Close(code CloseCode, reason string) Action {
	if sm.state != StateOpen {
		return Action{Kind: ActionNone}
	}
	sm.state = StateClosing
	cf := CloseFrame{Code: code, Reason: reason}
	return Action{Kind: ActionSendClose, CloseFrame: cf}
}

// ReceivedClose drives the receivedClose(frame) input.
func (sm *StateMachine) ReceivedClose(frame CloseFrame) Action {
	switch sm.state {
	case StateOpen:
		sm.state = StateClosed
		sm.observedClose = &frame
		// Echo back normalClosure per spec.md §9's "canonical behavior"
		// open question resolution: the source echoes normalClosure on
		// receipt of any valid peer close.
		echo := CloseFrame{Code: CloseNormalClosure}
		return Action{Kind: ActionSendClose, CloseFrame: echo}
	case StateClosing:
		if sm.observedClose == nil {
			sm.observedClose = &frame
		}
		sm.state = StateClosed
		return Action{Kind: ActionNone}
	default: // StateClosed
		return Action{Kind: ActionNone}
	}
}

// ForceClose records a locally-detected error (protocol/data/policy/
// timeout) as the settled close frame and transitions directly to Closed,
// without waiting for a peer echo. If a close frame was already recorded
// (by ReceivedClose or an earlier ForceClose), that first-seen frame is
// kept; a local Close records none, so a ForceClose while Closing records
// its own code.
func (sm *StateMachine) ForceClose(code CloseCode, reason string) Action {
	if sm.state == StateClosed {
		return Action{Kind: ActionNone}
	}
	sm.state = StateClosed
	if sm.observedClose == nil {
		sm.observedClose = &CloseFrame{Code: code, Reason: reason}
	}
	return Action{Kind: ActionSendClose, CloseFrame: CloseFrame{Code: code, Reason: reason}}
}

// SendPing drives the automatic ping-timer input. Only meaningful when
// AutoPingSetup.Enabled. Nothing in this package calls it: Conn runs no
// ping timer, so a Conn sends no automatic pings.
func (sm *StateMachine) SendPing() Action {
	switch sm.state {
	case StateOpen:
		if sm.outstandingPingSent {
			if time.Since(sm.lastPingTime) < sm.period {
				return Action{Kind: ActionWait}
			}
			return Action{Kind: ActionCloseConnection, CloseFrame: CloseFrame{Code: CloseUnexpectedServerError, Reason: "ping timeout"}}
		}
		if sm.pingLimiter != nil && !sm.pingLimiter.Allow() {
			return Action{Kind: ActionWait}
		}
		if err := fillPingNonce(sm.outstandingPing); err != nil {
			return Action{Kind: ActionWait}
		}
		sm.outstandingPingSent = true
		sm.lastPingTime = time.Now()
		return Action{Kind: ActionSendPing, Payload: sm.outstandingPing}
	default:
		return Action{Kind: ActionStop}
	}
}

// ReceivedPong drives the receivedPong(data) input: if data matches the
// outstanding ping, the outstanding flag clears and the timer resets.
func (sm *StateMachine) ReceivedPong(data []byte) {
	if sm.state != StateOpen || !sm.outstandingPingSent {
		return
	}
	if bytesEqual(data, sm.outstandingPing) {
		sm.outstandingPingSent = false
		sm.lastPingTime = time.Now()
	}
}

// ReceivedPing drives the receivedPing(data) input.
func (sm *StateMachine) ReceivedPing(data []byte) Action {
	if sm.state != StateOpen {
		return Action{Kind: ActionNone}
	}
	return Action{Kind: ActionSendPong, Payload: data}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
