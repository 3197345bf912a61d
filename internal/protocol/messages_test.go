package protocol

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want Action
	}{
		{"join", `{"type":"join","player_name":"Ana","game_type":"race"}`, Join{PlayerName: "Ana", GameType: "race"}},
		{"join pve", `{"type":"join","player_name":"Ana","game_type":"duels","mode":"pve"}`, Join{PlayerName: "Ana", GameType: "duels", Mode: "pve"}},
		{"leave", `{"type":"leave"}`, Leave{}},
		{"guess", `{"type":"guess","letter":"a"}`, Guess{Letter: "a"}},
		{"cast", `{"type":"cast_action","action":"ignis"}`, CastAction{Action: "ignis"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAction([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseActionRejectsUnknownType(t *testing.T) {
	t.Parallel()

	_, err := ParseAction([]byte(`{"type":"rematch"}`))
	require.Error(t, err)

	var unknown *UnknownTypeError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "rematch", unknown.Type)
}

func TestParseActionRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{`not json`, `{}`, `{"type":""}`, `{"type":"guess","letter":5}`, `[1,2]`} {
		_, err := ParseAction([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestEncodeAddsTypeFirst(t *testing.T) {
	t.Parallel()

	data, err := Encode(WrongGuess{Letter: "Z", AttemptsLeft: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"wrong_guess","letter":"Z","attempts_left":5}`, string(data))
	assert.Equal(t, `{"type":"wrong_guess",`, string(data[:len(`{"type":"wrong_guess",`)]))
}

func TestEncodeEmptyPayload(t *testing.T) {
	t.Parallel()

	data, err := EncodeAction(Leave{})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"leave"}`, string(data))

	action, err := ParseAction(data)
	require.NoError(t, err)
	assert.Equal(t, Leave{}, action)
}

func TestDecodeEvent(t *testing.T) {
	t.Parallel()

	original := StageStatus{Stages: map[int][]string{1: {"Ana", "Luis"}, 2: {}}}
	data, err := Encode(original)
	require.NoError(t, err)

	ev, err := DecodeEvent(data)
	require.NoError(t, err)
	require.IsType(t, StageStatus{}, ev)
	assert.Equal(t, []string{"Ana", "Luis"}, ev.(StageStatus).Stages[1])

	_, err = DecodeEvent([]byte(`{"type":"hand_start"}`))
	var unknown *UnknownTypeError
	assert.True(t, errors.As(err, &unknown))
}

func TestEveryEventHasDecoder(t *testing.T) {
	t.Parallel()

	events := []Event{
		Joined{}, Waiting{}, Error{}, SessionStart{}, StageUpdate{}, CorrectGuess{},
		WrongGuess{}, StageComplete{}, StageFailed{}, SessionOver{}, PlayerProgress{},
		PlayerJoined{}, StageStatus{}, DuelStart{}, RoundStart{}, OpponentActed{},
		RoundResult{}, DuelOver{},
	}
	for _, ev := range events {
		data, err := Encode(ev)
		require.NoError(t, err)

		var h map[string]any
		require.NoError(t, json.Unmarshal(data, &h))
		assert.Equal(t, string(ev.EventType()), h["type"])

		decoded, err := DecodeEvent(data)
		require.NoError(t, err, ev.EventType())
		assert.Equal(t, ev.EventType(), decoded.EventType())
	}
}

func TestEncodeConcurrent(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev := RoundStart{Round: i, TimerSeconds: 15}
			data, err := Encode(ev)
			if !assert.NoError(t, err) {
				return
			}
			decoded, err := DecodeEvent(data)
			if assert.NoError(t, err) {
				assert.Equal(t, ev, decoded)
			}
		}(i)
	}
	wg.Wait()
}
