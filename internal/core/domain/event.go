package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EventName is one name of the relay's fixed event vocabulary.
type EventName string

const (
	EventOffer              EventName = "offer"
	EventAnswer             EventName = "answer"
	EventICECandidate       EventName = "ice-candidate"
	EventEndCall            EventName = "end-call"
	EventTriggerStartCall   EventName = "trigger-start-call"
	EventFormUpdate         EventName = "form-update"
	EventFormSubmit         EventName = "form-submit"
	EventAgentFormSubmitted EventName = "agent-form-submitted"
	EventClearForm          EventName = "clear-form"
	EventCallDeclined       EventName = "call-declined"
	EventScreenShared       EventName = "screen-shared"
	EventScreenEnded        EventName = "screen-ended"
	EventCallSummary        EventName = "call-summary"
)

type payloadKind int

const (
	payloadNone payloadKind = iota
	payloadDescription
	payloadCandidate
	payloadForm
	payloadSummary
)

type eventSpec struct {
	payload payloadKind
	from    Role // empty means either role may emit
}

var vocabulary = map[EventName]eventSpec{
	EventOffer:              {payload: payloadDescription, from: RoleCaller},
	EventAnswer:             {payload: payloadDescription, from: RoleAnswerer},
	EventICECandidate:       {payload: payloadCandidate},
	EventEndCall:            {payload: payloadNone},
	EventTriggerStartCall:   {payload: payloadNone},
	EventFormUpdate:         {payload: payloadForm},
	EventFormSubmit:         {payload: payloadForm, from: RoleCaller},
	EventAgentFormSubmitted: {payload: payloadNone, from: RoleAnswerer},
	EventClearForm:          {payload: payloadNone},
	EventCallDeclined:       {payload: payloadNone, from: RoleAnswerer},
	EventScreenShared:       {payload: payloadNone},
	EventScreenEnded:        {payload: payloadNone},
	EventCallSummary:        {payload: payloadSummary},
}

// Known reports whether name belongs to the vocabulary.
func (n EventName) Known() bool {
	_, ok := vocabulary[n]
	return ok
}

// EmittableBy reports whether a peer playing role r may emit the event.
func (n EventName) EmittableBy(r Role) bool {
	rule, ok := vocabulary[n]
	if !ok {
		return false
	}
	return rule.from == "" || rule.from == r
}

// Event is the envelope exchanged over the relay.
type Event struct {
	Name EventName       `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event and checks it against the vocabulary. A nil
// payload produces an event without data.
func NewEvent(name EventName, payload any) (Event, error) {
	ev := Event{Name: name}
	if payload != nil {
		switch p := payload.(type) {
		case json.RawMessage:
			ev.Data = p
		default:
			b, err := json.Marshal(payload)
			if err != nil {
				return Event{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, name, err)
			}
			ev.Data = b
		}
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// DecodeEvent parses an envelope and checks the name. It does not look at
// the payload, which is what the relay needs.
func DecodeEvent(raw []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var ev Event
	if err := dec.Decode(&ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !ev.Name.Known() {
		// The envelope is returned so callers can log or count the name.
		return ev, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Name)
	}
	return ev, nil
}

// ParseEvent decodes an envelope and validates its payload shape.
func ParseEvent(raw []byte) (Event, error) {
	ev, err := DecodeEvent(raw)
	if err != nil {
		return Event{}, err
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (e Event) hasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// Validate checks the payload presence and, for form and summary events,
// the payload shape. Negotiation payloads are opaque and only checked for
// presence.
func (e Event) Validate() error {
	rule, ok := vocabulary[e.Name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, e.Name)
	}
	if rule.payload == payloadNone {
		if e.hasData() {
			return fmt.Errorf("%w: %s carries no payload", ErrInvalidPayload, e.Name)
		}
		return nil
	}
	if !e.hasData() {
		return fmt.Errorf("%w: %s requires a payload", ErrInvalidPayload, e.Name)
	}
	switch rule.payload {
	case payloadForm:
		_, err := e.Form()
		return err
	case payloadSummary:
		_, err := e.Summary()
		return err
	}
	return nil
}

// Form decodes a form-update or form-submit payload.
func (e Event) Form() (FormRecord, error) {
	var rec FormRecord
	if err := decodeStrict(e.Data, &rec); err != nil {
		return FormRecord{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, e.Name, err)
	}
	return rec, nil
}

// Summary decodes a call-summary payload.
func (e Event) Summary() (CallSummary, error) {
	var s CallSummary
	if err := decodeStrict(e.Data, &s); err != nil {
		return CallSummary{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, e.Name, err)
	}
	return s, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
