// Package session implements the chat client state machine.
//
// State is an immutable value. Apply folds one Event into it and returns the
// next State together with an optional Effect the caller must perform
// (loading history or sending a turn). The results of effects come back as
// further events. History loads carry a sequence number so that only the
// most recently requested load is applied, and submits wait until that load
// has resolved so a late load cannot replace messages sent in the meantime.
package session

import (
	"strings"

	"github.com/kalambet/parley/internal/chat"
)

// FallbackError is shown when a failed request carries no message.
const FallbackError = "Failed to get response"

// State is the client view of one chat mode.
type State struct {
	Mode    chat.Mode
	History []chat.Message
	Input   string
	Loading bool
	// LoadSeq identifies the latest requested history load.
	LoadSeq int
	// Loaded is set once the load for LoadSeq has resolved, successfully or not.
	Loaded bool
	// Err is the last history load failure, if any.
	Err error
}

// New returns the initial state for mode. Apply Refresh to load its history.
func New(mode chat.Mode) State {
	return State{Mode: mode}
}

// Event is an input to Apply.
type Event interface{ event() }

// Refresh reloads the history of the current mode.
type Refresh struct{}

// ModeChanged switches to another mode.
type ModeChanged struct{ Mode chat.Mode }

// InputChanged replaces the input buffer.
type InputChanged struct{ Text string }

// HistoryLoaded delivers the result of a LoadHistory effect.
type HistoryLoaded struct {
	Mode     chat.Mode
	Seq      int
	Messages []chat.Message
	Err      error
}

// SubmitRequested sends the input buffer.
type SubmitRequested struct{}

// SubmitSucceeded delivers the reply of a SendTurn effect.
type SubmitSucceeded struct {
	Mode  chat.Mode
	Reply string
}

// SubmitFailed delivers the error of a SendTurn effect.
type SubmitFailed struct {
	Mode chat.Mode
	Err  error
}

func (Refresh) event()         {}
func (ModeChanged) event()     {}
func (InputChanged) event()    {}
func (HistoryLoaded) event()   {}
func (SubmitRequested) event() {}
func (SubmitSucceeded) event() {}
func (SubmitFailed) event()    {}

// Effect is work requested by Apply.
type Effect interface{ effect() }

// LoadHistory asks for the stored history of Mode.
type LoadHistory struct {
	Mode chat.Mode
	Seq  int
}

// SendTurn asks for Messages to be posted to the Mode endpoint.
type SendTurn struct {
	Mode     chat.Mode
	Messages []chat.Message
}

func (LoadHistory) effect() {}
func (SendTurn) effect()    {}

// Apply returns the state after ev. The returned Effect is nil when there is
// nothing to do.
func Apply(s State, ev Event) (State, Effect) {
	switch ev := ev.(type) {
	case Refresh:
		return s.reload()

	case ModeChanged:
		if ev.Mode == s.Mode {
			return s, nil
		}
		s.Mode = ev.Mode
		return s.reload()

	case InputChanged:
		s.Input = ev.Text
		return s, nil

	case HistoryLoaded:
		if ev.Mode != s.Mode || ev.Seq != s.LoadSeq {
			return s, nil
		}
		s.Loaded = true
		if ev.Err != nil {
			s.Err = ev.Err
			return s, nil
		}
		s.Err = nil
		s.History = append([]chat.Message(nil), ev.Messages...)
		return s, nil

	case SubmitRequested:
		if s.Loading || !s.Loaded || strings.TrimSpace(s.Input) == "" {
			return s, nil
		}
		s.History = appendMessage(s.History, chat.UserMessage(s.Input))
		s.Input = ""
		s.Loading = true
		return s, SendTurn{Mode: s.Mode, Messages: append([]chat.Message(nil), s.History...)}

	case SubmitSucceeded:
		s.Loading = false
		if ev.Mode != s.Mode {
			return s, nil
		}
		s.History = appendMessage(s.History, chat.AssistantMessage(strings.ReplaceAll(ev.Reply, "**", "")))
		return s, nil

	case SubmitFailed:
		s.Loading = false
		if ev.Mode != s.Mode {
			return s, nil
		}
		s.History = appendMessage(s.History, chat.AssistantMessage(ErrorText(ev.Err)))
		return s, nil
	}
	return s, nil
}

func (s State) reload() (State, Effect) {
	s.History = nil
	s.Err = nil
	s.Loaded = false
	s.LoadSeq++
	return s, LoadHistory{Mode: s.Mode, Seq: s.LoadSeq}
}

// ErrorText formats a failed submit as a transcript entry.
func ErrorText(err error) string {
	msg := FallbackError
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return "Error: " + msg
}

// appendMessage never writes into the backing array of h, so earlier states
// keep their history.
func appendMessage(h []chat.Message, m chat.Message) []chat.Message {
	out := make([]chat.Message, len(h), len(h)+1)
	copy(out, h)
	return append(out, m)
}

// Placeholder is the input hint for mode.
func Placeholder(mode chat.Mode) string {
	if mode == chat.ModeProject {
		return "Ask about your project..."
	}
	return "Ask general question..."
}
