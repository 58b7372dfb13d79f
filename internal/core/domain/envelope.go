package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

type MessageType string

const (
	MessageTokenRequest  MessageType = "tokenRequest"
	MessageTokenResponse MessageType = "tokenResponse"
	MessageBye           MessageType = "bye"
	MessageOffer         MessageType = "offer"
	MessageAnswer        MessageType = "answer"
	MessageCandidate     MessageType = "candidate"
)

// Known reports whether the relay has special handling for t. Anything else
// is routed to the peer untouched.
func (t MessageType) Known() bool {
	switch t {
	case MessageTokenRequest, MessageTokenResponse, MessageBye, MessageOffer, MessageAnswer, MessageCandidate:
		return true
	}
	return false
}

// Envelope is a signaling message. Raw is the exact payload as received and
// is what gets delivered; Type is only used for dispatch.
type Envelope struct {
	Type MessageType
	Raw  []byte
}

func ParseEnvelope(raw []byte) (Envelope, error) {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if head.Type == nil || *head.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	return Envelope{Type: MessageType(*head.Type), Raw: raw}, nil
}

func ByeEnvelope() Envelope {
	return Envelope{Type: MessageBye, Raw: []byte(`{"type":"bye"}`)}
}

func TokenResponseEnvelope(token string) (Envelope, error) {
	raw, err := json.Marshal(struct {
		Type  MessageType `json:"type"`
		Token string      `json:"token"`
	}{MessageTokenResponse, token})
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: MessageTokenResponse, Raw: raw}, nil
}

// googleICEOption is the vendor ICE option line some clients put in offers.
// It is only valid on the offering side, so it is dropped when an offer is
// turned into its own answer.
const googleICEOption = "a=ice-options:google-ice\r\n"

// LoopbackAnswer turns an offer into the answer a single client expects when
// it is paired with itself.
func LoopbackAnswer(e Envelope) (Envelope, error) {
	if e.Type != MessageOffer {
		return e, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(e.Raw, &fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	fields["type"] = json.RawMessage(`"answer"`)
	if rawSDP, ok := fields["sdp"]; ok {
		var sdp string
		if err := json.Unmarshal(rawSDP, &sdp); err == nil {
			b, err := json.Marshal(strings.ReplaceAll(sdp, googleICEOption, ""))
			if err != nil {
				return Envelope{}, err
			}
			fields["sdp"] = b
		}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: MessageAnswer, Raw: raw}, nil
}
