// Package protocol defines the events exchanged over a chat connection.
//
// Every frame is an envelope {"type", "ref", "payload"}. Each type has exactly
// one payload shape; unknown types, unknown fields and missing required
// fields are rejected rather than coerced.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type EventType string

// Client → server.
const (
	TypeJoin  EventType = "join"
	TypeLeave EventType = "leave"
	TypeSend  EventType = "send"
)

// Server → client.
const (
	TypeMessage EventType = "message"
	TypeBlocked EventType = "blocked"
	TypeError   EventType = "error"
	TypePinned  EventType = "pinned"
	TypeAck     EventType = "ack"
)

// MaxContentLength bounds a message body, in runes.
const MaxContentLength = 4000

type Envelope struct {
	Type EventType `json:"type"`
	// Ref is an optional client correlation id, echoed on ack/error/blocked.
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinPayload struct {
	ChannelID uuid.UUID `json:"channel_id" validate:"required"`
}

type LeavePayload struct {
	ChannelID uuid.UUID `json:"channel_id" validate:"required"`
}

// SendPayload leaves Content unvalidated for blankness: an all-whitespace
// body is the pipeline's call, not a protocol error.
type SendPayload struct {
	ChannelID uuid.UUID `json:"channel_id" validate:"required"`
	Content   string    `json:"content" validate:"max=4000"`
	ReplyToID *int64    `json:"reply_to_id,omitempty" validate:"omitempty,gt=0"`
}

type BlockedPayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
	Reason    string    `json:"reason"`
	Detail    string    `json:"detail,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	// Code is machine-readable, e.g. "not_a_member" tells the client to
	// call the join-room endpoint and retry.
	Code string `json:"code,omitempty"`
}

type PinnedPayload struct {
	MessageID int64     `json:"message_id"`
	ChannelID uuid.UUID `json:"channel_id"`
	Pinned    bool      `json:"pinned"`
	PinnedBy  uuid.UUID `json:"pinned_by"`
}

type AckPayload struct {
	Action    EventType `json:"action"`
	ChannelID uuid.UUID `json:"channel_id"`
	MessageID int64     `json:"message_id,omitempty"`
}

// Inbound is a decoded client event. Payload is one of JoinPayload,
// LeavePayload or SendPayload, matching Type.
type Inbound struct {
	Type    EventType
	Ref     string
	Payload any
}

// DecodeError marks a malformed client frame. The connection stays open.
type DecodeError struct {
	Ref string
	Msg string
}

func (e *DecodeError) Error() string { return e.Msg }

var validate = newValidator()

// newValidator reports fields by their JSON names, which is what clients see.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode parses and validates one client frame.
func Decode(data []byte) (Inbound, error) {
	var env Envelope
	if err := strictUnmarshal(data, &env); err != nil {
		return Inbound{}, &DecodeError{Msg: "malformed envelope: " + err.Error()}
	}

	var payload any
	switch env.Type {
	case TypeJoin:
		payload = &JoinPayload{}
	case TypeLeave:
		payload = &LeavePayload{}
	case TypeSend:
		payload = &SendPayload{}
	case "":
		return Inbound{}, &DecodeError{Ref: env.Ref, Msg: "missing event type"}
	default:
		return Inbound{}, &DecodeError{Ref: env.Ref, Msg: fmt.Sprintf("unknown event type %q", env.Type)}
	}

	if len(env.Payload) == 0 || bytes.Equal(env.Payload, []byte("null")) {
		return Inbound{}, &DecodeError{Ref: env.Ref, Msg: fmt.Sprintf("%s: missing payload", env.Type)}
	}
	if err := strictUnmarshal(env.Payload, payload); err != nil {
		return Inbound{}, &DecodeError{Ref: env.Ref, Msg: fmt.Sprintf("%s: invalid payload: %v", env.Type, err)}
	}
	if err := validate.Struct(payload); err != nil {
		return Inbound{}, &DecodeError{Ref: env.Ref, Msg: fmt.Sprintf("%s: %s", env.Type, describe(err))}
	}

	in := Inbound{Type: env.Type, Ref: env.Ref}
	switch p := payload.(type) {
	case *JoinPayload:
		in.Payload = *p
	case *LeavePayload:
		in.Payload = *p
	case *SendPayload:
		in.Payload = *p
	}
	return in, nil
}

// Encode builds an outbound frame.
func Encode(t EventType, ref string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	data, err := json.Marshal(Envelope{Type: t, Ref: ref, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", t, err)
	}
	return data, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
