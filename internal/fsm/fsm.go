// Package fsm models the lifecycle of one miner command exchange.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle             State = "idle"
	StateConnecting       State = "connecting"
	StateConnectFailed    State = "connect_failed"
	StateConnectTimedOut  State = "connect_timed_out"
	StateConnected        State = "connected"
	StateAwaitingResponse State = "awaiting_response"
	StateResponseComplete State = "response_complete"
	StateParseFailed      State = "parse_failed"
	StateTransportError   State = "transport_error"
	StateResponseTimedOut State = "response_timed_out"
	StateCancelled        State = "cancelled"
)

const (
	EventDial        Event = "dial"
	EventDialOK      Event = "dial_ok"
	EventDialFail    Event = "dial_fail"
	EventDialTimeout Event = "dial_timeout"
	EventSent        Event = "sent"
	EventResponse    Event = "response"
	EventParseFail   Event = "parse_fail"
	EventTransport   Event = "transport"
	EventReadTimeout Event = "read_timeout"
	EventCancel      Event = "cancel"
)

// Terminal reports whether no further transitions are allowed from state.
func Terminal(state State) bool {
	switch state {
	case StateConnectFailed,
		StateConnectTimedOut,
		StateResponseComplete,
		StateParseFailed,
		StateTransportError,
		StateResponseTimedOut,
		StateCancelled:
		return true
	default:
		return false
	}
}

func Transition(current State, event Event) (State, error) {
	if event == EventCancel && !Terminal(current) {
		return StateCancelled, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventDial:
			return StateConnecting, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateConnecting:
		switch event {
		case EventDialOK:
			return StateConnected, nil
		case EventDialFail:
			return StateConnectFailed, nil
		case EventDialTimeout:
			return StateConnectTimedOut, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateConnected:
		switch event {
		case EventSent:
			return StateAwaitingResponse, nil
		case EventTransport:
			return StateTransportError, nil
		case EventReadTimeout:
			return StateResponseTimedOut, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAwaitingResponse:
		switch event {
		case EventResponse:
			return StateResponseComplete, nil
		case EventParseFail:
			return StateParseFailed, nil
		case EventTransport:
			return StateTransportError, nil
		case EventReadTimeout:
			return StateResponseTimedOut, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateConnectFailed,
		StateConnectTimedOut,
		StateResponseComplete,
		StateParseFailed,
		StateTransportError,
		StateResponseTimedOut,
		StateCancelled:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
