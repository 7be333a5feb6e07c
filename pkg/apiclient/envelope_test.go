package apiclient

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvelope(t *testing.T) {
	t.Parallel()

	env, err := decodeEnvelope([]byte(`{"code":1000,"data":{"total":3},"msg":"success"}`))
	require.NoError(t, err)
	require.True(t, env.OK())
	require.NoError(t, env.Err())

	data, err := DecodeData[struct {
		Total int `json:"total"`
	}](env)
	require.NoError(t, err)
	require.Equal(t, 3, data.Total)

	env, err = decodeEnvelope([]byte(`{"code":400,"msg":"tokenId required"}`))
	require.NoError(t, err)
	require.False(t, env.OK())

	var codeErr *CodeError
	require.ErrorAs(t, env.Err(), &codeErr)
	require.Equal(t, 400, codeErr.Code)
	require.Equal(t, "tokenId required", codeErr.Msg)

	env, err = decodeEnvelope(nil)
	require.NoError(t, err)
	require.False(t, env.OK())

	_, err = decodeEnvelope([]byte("<html>"))
	require.Error(t, err)

	var nilEnv *Envelope
	require.Error(t, nilEnv.Err())
}

func TestDecodeDataNull(t *testing.T) {
	t.Parallel()

	env := &Envelope{Code: CodeSuccess, Data: json.RawMessage("null")}
	v := []int{1}
	require.NoError(t, env.DecodeData(&v))
	require.Equal(t, []int{1}, v)

	env = &Envelope{Code: CodeSuccess, Data: json.RawMessage(`"x"`)}
	require.Error(t, env.DecodeData(&v))
}

func TestTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   string
	}{
		{"epoch millis", `1709281800000`},
		{"rfc3339", `"2024-03-01T08:30:00Z"`},
		{"space separated", `"2024-03-01 08:30:00"`},
		{"local iso", `"2024-03-01T08:30:00"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.in), &ts))
			require.True(t, want.Equal(ts.Time), ts.Time.String())
		})
	}

	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	require.True(t, ts.IsZero())
	require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))

	out, err := json.Marshal(Timestamp{Time: want})
	require.NoError(t, err)
	require.Equal(t, "1709281800000", string(out))
}
