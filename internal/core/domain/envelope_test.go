package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	req := require.New(t)

	env, err := ParseEnvelope([]byte(`{"type":"candidate","label":0,"candidate":"a=x"}`))
	req.NoError(err)
	req.Equal(MessageCandidate, env.Type)
	req.True(env.Type.Known())

	env, err = ParseEnvelope([]byte(`{"type":"mute"}`))
	req.NoError(err)
	req.Equal(MessageType("mute"), env.Type)
	req.False(env.Type.Known())
}

func TestParseEnvelope_Malformed(t *testing.T) {
	for _, raw := range []string{``, `not json`, `[]`, `{}`, `{"type":""}`, `{"type":3}`, `"offer"`} {
		_, err := ParseEnvelope([]byte(raw))
		require.ErrorIs(t, err, ErrMalformedEnvelope, "input %q", raw)
	}
}

func TestLoopbackAnswer_RewritesOffer(t *testing.T) {
	req := require.New(t)
	sdp := "v=0\r\na=ice-options:google-ice\r\na=mid:audio\r\n"
	raw, err := json.Marshal(map[string]string{"type": "offer", "sdp": sdp})
	req.NoError(err)

	env, err := ParseEnvelope(raw)
	req.NoError(err)
	out, err := LoopbackAnswer(env)
	req.NoError(err)
	req.Equal(MessageAnswer, out.Type)

	var got map[string]string
	req.NoError(json.Unmarshal(out.Raw, &got))
	req.Equal("answer", got["type"])
	req.Equal("v=0\r\na=mid:audio\r\n", got["sdp"])
}

func TestLoopbackAnswer_LeavesOtherTypes(t *testing.T) {
	req := require.New(t)
	raw := []byte(`{"type":"candidate","candidate":"a=ice-options:google-ice\r\n"}`)
	env, err := ParseEnvelope(raw)
	req.NoError(err)

	out, err := LoopbackAnswer(env)
	req.NoError(err)
	req.Equal(env, out)
}

func TestTokenResponseEnvelope(t *testing.T) {
	req := require.New(t)
	env, err := TokenResponseEnvelope("tok")
	req.NoError(err)
	req.JSONEq(`{"type":"tokenResponse","token":"tok"}`, string(env.Raw))
}
