package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrMalformed is returned when a message is not a JSON object with a type
var ErrMalformed = errors.New("malformed message")

// UnknownTypeError is returned for a well-formed message whose type
// discriminator is not part of the vocabulary.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type: %q", e.Type)
}

// Pool of buffers to avoid allocation and ensure thread safety
var bufferPool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

type header struct {
	Type MessageType `json:"type"`
}

func readType(data []byte) (MessageType, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if h.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return h.Type, nil
}

// ParseAction decodes an inbound client message by its type discriminator
func ParseAction(data []byte) (Action, error) {
	msgType, err := readType(data)
	if err != nil {
		return nil, err
	}

	switch msgType {
	case TypeJoin:
		return decodeAction[Join](data)
	case TypeLeave:
		return Leave{}, nil
	case TypeGuess:
		return decodeAction[Guess](data)
	case TypeCastAction:
		return decodeAction[CastAction](data)
	default:
		return nil, &UnknownTypeError{Type: string(msgType)}
	}
}

func decodeAction[T Action](data []byte) (Action, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

// Encode serializes an outbound event as a flat JSON object whose first
// field is the type discriminator.
func Encode(ev Event) ([]byte, error) {
	return encodeTagged(ev.EventType(), ev)
}

// EncodeAction serializes an inbound action the way a client sends it
func EncodeAction(a Action) ([]byte, error) {
	return encodeTagged(a.ActionType(), a)
}

func encodeTagged(tag MessageType, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("message %s does not encode to an object", tag)
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	buf.WriteString(`{"type":"`)
	buf.WriteString(string(tag))
	buf.WriteByte('"')
	if len(body) > 2 {
		buf.WriteByte(',')
	}
	buf.Write(body[1:])

	// Create a copy to avoid aliasing the pooled buffer
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

var eventDecoders = map[MessageType]func([]byte) (Event, error){
	TypeJoined:         decodeEvent[Joined],
	TypeWaiting:        decodeEvent[Waiting],
	TypeError:          decodeEvent[Error],
	TypeSessionStart:   decodeEvent[SessionStart],
	TypeStageUpdate:    decodeEvent[StageUpdate],
	TypeCorrectGuess:   decodeEvent[CorrectGuess],
	TypeWrongGuess:     decodeEvent[WrongGuess],
	TypeStageComplete:  decodeEvent[StageComplete],
	TypeStageFailed:    decodeEvent[StageFailed],
	TypeSessionOver:    decodeEvent[SessionOver],
	TypePlayerProgress: decodeEvent[PlayerProgress],
	TypePlayerJoined:   decodeEvent[PlayerJoined],
	TypeStageStatus:    decodeEvent[StageStatus],
	TypeDuelStart:      decodeEvent[DuelStart],
	TypeRoundStart:     decodeEvent[RoundStart],
	TypeOpponentActed:  decodeEvent[OpponentActed],
	TypeRoundResult:    decodeEvent[RoundResult],
	TypeDuelOver:       decodeEvent[DuelOver],
}

// DecodeEvent parses an outbound event, as received by a client
func DecodeEvent(data []byte) (Event, error) {
	msgType, err := readType(data)
	if err != nil {
		return nil, err
	}
	decode, ok := eventDecoders[msgType]
	if !ok {
		return nil, &UnknownTypeError{Type: string(msgType)}
	}
	return decode(data)
}

func decodeEvent[T Event](data []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}
