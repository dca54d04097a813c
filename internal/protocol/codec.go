package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/rocketscienceinc/tictactoe-session/internal/apperror"
)

const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

var (
	ErrUnknownCodec = errors.New("unknown codec")
	ErrUnknownKind  = errors.New("unknown message kind")
	ErrNilMessage   = errors.New("nil message")
	ErrMissingField = errors.New("missing field")
)

// Codec turns messages into channel frames and back.
// Decode errors always wrap apperror.ErrMalformedMessage.
type Codec interface {
	Name() string
	Binary() bool
	Encode(msg Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

type validator interface {
	validate() error
}

// requirer lists payload fields that have to be present, since their zero values are legal.
type requirer interface {
	required() []string
}

type unmarshalFunc func(data []byte, v any) error

type decodeFunc func(unmarshal unmarshalFunc, payload []byte) (Message, error)

var decoders = map[Kind]decodeFunc{
	KindJoin:               decodeAs[Join],
	KindJoinAck:            decodeAs[JoinAck],
	KindBoardLayout:        decodeAs[BoardLayout],
	KindMove:               decodeAs[Move],
	KindMoveBroadcast:      decodeAs[MoveBroadcast],
	KindEnd:                decodeAs[End],
	KindError:              decodeAs[Error],
	KindLeave:              decodeAs[Leave],
	KindRequestBoardLayout: decodeAs[RequestBoardLayout],
}

func decodeAs[T Message](unmarshal unmarshalFunc, payload []byte) (Message, error) {
	var msg T

	if r, ok := any(msg).(requirer); ok {
		if err := checkRequired(unmarshal, payload, r.required()); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", msg.Kind(), err)
		}
	}

	if len(payload) > 0 {
		if err := unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s payload: %w", msg.Kind(), err)
		}
	}

	if err := validate(msg); err != nil {
		return nil, err
	}

	return msg, nil
}

func checkRequired(unmarshal unmarshalFunc, payload []byte, fields []string) error {
	var present map[string]any

	if len(payload) > 0 {
		if err := unmarshal(payload, &present); err != nil {
			return fmt.Errorf("failed to unmarshal payload fields: %w", err)
		}
	}

	for _, field := range fields {
		if value, ok := present[field]; !ok || value == nil {
			return fmt.Errorf("%w: %s", ErrMissingField, field)
		}
	}

	return nil
}

func validate(msg Message) error {
	if v, ok := msg.(validator); ok {
		if err := v.validate(); err != nil {
			return fmt.Errorf("invalid %s payload: %w", msg.Kind(), err)
		}
	}

	return nil
}

// NewCodec returns the codec registered under name.
func NewCodec(name string) (Codec, error) {
	switch name {
	case CodecJSON, "":
		return NewJSONCodec(), nil
	case CodecCBOR:
		return NewCBORCodec()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
	}
}

func decodePayload(kind Kind, unmarshal unmarshalFunc, payload []byte) (Message, error) {
	decode, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", apperror.ErrMalformedMessage, ErrUnknownKind, string(kind))
	}

	msg, err := decode(unmarshal, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrMalformedMessage, err)
	}

	return msg, nil
}

type jsonEnvelope struct {
	Action  Kind            `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JSONCodec matches the JSON message bus the receiver listens on.
type JSONCodec struct{}

func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

func (that *JSONCodec) Name() string { return CodecJSON }

func (that *JSONCodec) Binary() bool { return false }

func (that *JSONCodec) Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}

	if err := validate(msg); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msg.Kind(), err)
	}

	data, err := json.Marshal(jsonEnvelope{Action: msg.Kind(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return data, nil
}

func (that *JSONCodec) Decode(data []byte) (Message, error) {
	var envelope jsonEnvelope

	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrMalformedMessage, err)
	}

	return decodePayload(envelope.Action, json.Unmarshal, envelope.Payload)
}

type cborEnvelope struct {
	Action  Kind            `cbor:"action"`
	Payload cbor.RawMessage `cbor:"payload,omitempty"`
}

// CBORCodec uses Core Deterministic Encoding, so equal messages give equal frames.
type CBORCodec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

func NewCBORCodec() (*CBORCodec, error) {
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to build cbor encoder: %w", err)
	}

	decMode, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to build cbor decoder: %w", err)
	}

	return &CBORCodec{encMode: encMode, decMode: decMode}, nil
}

func (that *CBORCodec) Name() string { return CodecCBOR }

func (that *CBORCodec) Binary() bool { return true }

func (that *CBORCodec) Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}

	if err := validate(msg); err != nil {
		return nil, err
	}

	payload, err := that.encMode.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msg.Kind(), err)
	}

	data, err := that.encMode.Marshal(cborEnvelope{Action: msg.Kind(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return data, nil
}

func (that *CBORCodec) Decode(data []byte) (Message, error) {
	var envelope cborEnvelope

	if err := that.decMode.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrMalformedMessage, err)
	}

	return decodePayload(envelope.Action, that.decMode.Unmarshal, envelope.Payload)
}
