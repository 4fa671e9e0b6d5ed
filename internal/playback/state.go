package playback

// StateType represents the current state of a playback session.
type StateType int

const (
	// StateIdle indicates no segment is loaded.
	StateIdle StateType = iota
	// StateLoading indicates a segment fetch is in flight.
	StateLoading
	// StatePlaying indicates the transport is producing audio.
	StatePlaying
	// StatePaused indicates a loaded segment is paused.
	StatePaused
	// StateError indicates the last fetch or playback failed.
	StateError
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StateMachine guards state transitions of the controller.
type StateMachine struct {
	current     StateType
	transitions map[StateType][]StateType
	onEnter     map[StateType]func()
}

// NewStateMachine creates a new state machine with valid transitions.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[StateType][]StateType{
			StateIdle:    {StateLoading},
			StateLoading: {StateLoading, StatePlaying, StateError, StateIdle},
			StatePlaying: {StatePaused, StateLoading, StateIdle, StateError},
			StatePaused:  {StatePlaying, StateLoading, StateIdle, StateError},
			StateError:   {StateIdle, StateLoading},
		},
		onEnter: make(map[StateType]func()),
	}
}

// CanTransition reports whether moving to the state is allowed.
func (sm *StateMachine) CanTransition(to StateType) bool {
	for _, state := range sm.transitions[sm.current] {
		if state == to {
			return true
		}
	}
	return false
}

// Transition attempts to transition to the specified state.
func (sm *StateMachine) Transition(to StateType) bool {
	if !sm.CanTransition(to) {
		return false
	}
	sm.enter(to)
	return true
}

// Reset moves to the state unconditionally. Loading a new book or jumping
// to a page resets from any state.
func (sm *StateMachine) Reset(to StateType) {
	if sm.current == to {
		return
	}
	sm.enter(to)
}

func (sm *StateMachine) enter(to StateType) {
	sm.current = to
	if fn, ok := sm.onEnter[to]; ok && fn != nil {
		fn()
	}
}

// Current returns the current state.
func (sm *StateMachine) Current() StateType {
	return sm.current
}

// OnEnter registers a callback for entering a state.
func (sm *StateMachine) OnEnter(state StateType, fn func()) {
	sm.onEnter[state] = fn
}
