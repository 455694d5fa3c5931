package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"PMarket/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoom(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    Room
		wantErr bool
	}{
		{name: "three segments", key: "market:offer:42", want: Room{Namespace: "market", Subtype: "offer", EntityID: "42"}},
		{name: "two segments", key: "market:offer", wantErr: true},
		{name: "four segments", key: "a:b:c:d", wantErr: true},
		{name: "blank segment", key: "market: :42", wantErr: true},
		{name: "empty", key: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRoom(tt.key)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errs.ErrInvalidRoom))
				assert.False(t, ValidRoom(tt.key))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.key, got.Key())
		})
	}
}

func TestEncodeParseEnvelope(t *testing.T) {
	b, err := Encode(EventJoinRoom, RoomPayload{Room: "market:offer:1"})
	require.NoError(t, err)

	env, err := ParseEnvelope(b)
	require.NoError(t, err)
	assert.Equal(t, EventJoinRoom, env.Event)

	var p RoomPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "market:offer:1", p.Room)

	b, err = Encode(EventPing, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ping"}`, string(b))
}

func TestEncode_RejectsInvalidRaw(t *testing.T) {
	_, err := Encode(EventNewMessage, json.RawMessage(`{"room":`))
	assert.Error(t, err)
}

func TestParseEnvelope_Errors(t *testing.T) {
	_, err := ParseEnvelope([]byte("not json"))
	assert.True(t, errors.Is(err, errs.ErrBadPayload))

	_, err = ParseEnvelope([]byte(`{"data":{}}`))
	assert.True(t, errors.Is(err, errs.ErrInvalidEvent))
}

func TestValidEventName(t *testing.T) {
	assert.True(t, ValidEventName("offer:countered"))
	assert.False(t, ValidEventName(""))
	assert.False(t, ValidEventName("has space"))
	assert.False(t, ValidEventName(strings.Repeat("x", maxEventName+1)))
	assert.True(t, ValidStatus(StatusAway))
	assert.False(t, ValidStatus("sleeping"))
}
