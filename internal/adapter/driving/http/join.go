package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/service"
	"github.com/rs/zerolog/log"
)

const (
	generatedRoomKeyLen = 8
	maxMessageBytes     = 64 << 10
)

type joinResponse struct {
	Token            string           `json:"token"`
	TokenTimeout     int              `json:"token_timeout"`
	Me               string           `json:"me"`
	RoomKey          string           `json:"room_key"`
	RoomLink         string           `json:"room_link"`
	Initiator        int              `json:"initiator"`
	PCConfig         pcConfig         `json:"pc_config"`
	MediaConstraints mediaConstraints `json:"media_constraints"`
}

type fullResponse struct {
	Full    bool   `json:"full"`
	RoomKey string `json:"room_key"`
}

// Join seats the caller in room r. Without a room the caller is redirected
// to a freshly generated one.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := domain.SanitizeRoomKey(q.Get("r"))
	debug := q.Get("debug")

	unittest := q.Get("unittest") != ""
	if unittest || key == "" {
		digits, err := domain.RandomDigits(generatedRoomKeyLen)
		if err != nil {
			writeError(w, fmt.Errorf("generate room key: %w", err))
			return
		}
		redirect := key == "" && !unittest
		key = domain.RoomKey(digits)
		if redirect {
			target := appendQueryArgs("/?r="+key.String(), r.URL.RawQuery)
			log.Info().Str("redirect", target).Msg("Redirecting visitor to new room")
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
	}

	res, err := h.Relay.Join(r.Context(), key, service.JoinOptions{
		Loopback:  debug == "loopback",
		ForceFull: debug == "full",
	})
	if errors.Is(err, domain.ErrRoomFull) {
		writeJSON(w, http.StatusOK, fullResponse{Full: true, RoomKey: key.String()})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	initiator := 0
	if res.Initiator {
		initiator = 1
	}
	ice := h.opts.ICE.override(q.Get("ss"), q.Get("ts"), q.Get("tp"))
	writeJSON(w, http.StatusOK, joinResponse{
		Token:            res.Token,
		TokenTimeout:     int(h.Relay.TokenTimeout().Seconds()),
		Me:               res.User.String(),
		RoomKey:          key.String(),
		RoomLink:         appendQueryArgs(strings.TrimRight(h.opts.PublicBaseURL, "/")+"/?r="+key.String(), r.URL.RawQuery),
		Initiator:        initiator,
		PCConfig:         ice.pcConfig(),
		MediaConstraints: newMediaConstraints(strings.EqualFold(q.Get("hd"), "true")),
	})
}

// appendQueryArgs copies every query argument except r onto link, keeping
// the order they were sent in.
func appendQueryArgs(link, rawQuery string) string {
	var sb strings.Builder
	sb.WriteString(link)
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		name, _, _ := strings.Cut(part, "=")
		if n, err := url.QueryUnescape(name); err == nil && n == "r" {
			continue
		}
		sb.WriteByte('&')
		sb.WriteString(part)
	}
	return sb.String()
}

var errBodyTooLarge = errors.New("message body too large")

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxMessageBytes {
		return nil, errBodyTooLarge
	}
	return body, nil
}
