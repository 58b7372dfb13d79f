package http

import "github.com/pion/webrtc/v4"

const defaultStunServer = "stun.l.google.com:19302"

// ICEConfig holds the STUN/TURN servers handed to clients on join. Query
// parameters ss, ts and tp override them per request.
type ICEConfig struct {
	StunServer     string
	TurnServer     string
	TurnCredential string
}

type pcConfig struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

func (c ICEConfig) override(stun, turn, cred string) ICEConfig {
	if stun != "" {
		c.StunServer = stun
	}
	if turn != "" {
		c.TurnServer = turn
	}
	if cred != "" {
		c.TurnCredential = cred
	}
	return c
}

func (c ICEConfig) pcConfig() pcConfig {
	var servers []webrtc.ICEServer
	if c.TurnServer != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{"turn:" + c.TurnServer},
			Credential: c.TurnCredential,
		})
	}
	stun := c.StunServer
	if stun == "" {
		stun = defaultStunServer
	}
	servers = append(servers, webrtc.ICEServer{URLs: []string{"stun:" + stun}})
	return pcConfig{ICEServers: servers}
}

type mediaConstraints struct {
	Optional  []map[string]int `json:"optional"`
	Mandatory map[string]int   `json:"mandatory"`
}

func newMediaConstraints(hd bool) mediaConstraints {
	mc := mediaConstraints{
		Optional:  []map[string]int{},
		Mandatory: map[string]int{},
	}
	if hd {
		mc.Mandatory["minWidth"] = 1280
		mc.Mandatory["minHeight"] = 720
	}
	return mc
}
