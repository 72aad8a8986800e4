package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

const serverChanAPIBase = "https://sctapi.ftqq.com"

var sctpKeyRe = regexp.MustCompile(`^sctp(\d+)t`)

// ServerChan pushes through the ServerChan service. Keys carrying the
// versioned sctp prefix address a dedicated shard host derived from the
// key itself; plain keys go through the shared API base.
type ServerChan struct {
	Client *http.Client
}

type serverChanResp struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		PushID string `json:"pushid"`
	} `json:"data"`
}

func (s *ServerChan) Send(ctx context.Context, msg Message, cfg map[string]string) (string, error) {
	key := cfg["send_key"]
	if key == "" {
		return "", &Error{Channel: "serverchan", Msg: "send_key is required"}
	}

	endpoint, err := serverChanEndpoint(key, cfg["api_base"])
	if err != nil {
		return "", err
	}

	body := map[string]any{"title": msg.Title, "desp": msg.Content}
	for k, v := range msg.Overrides {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out serverChanResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &Error{Channel: "serverchan", Msg: "malformed response: " + err.Error()}
	}
	if out.Code != 0 {
		return "", &Error{Channel: "serverchan", Code: out.Code, Msg: out.Message}
	}
	return out.Data.PushID, nil
}

// serverChanEndpoint derives the push URL for a send key. sctp-prefixed
// keys embed a numeric shard id; a prefix without one is rejected
// rather than falling through to the shared host.
func serverChanEndpoint(key, base string) (string, error) {
	if strings.HasPrefix(key, "sctp") {
		m := sctpKeyRe.FindStringSubmatch(key)
		if m == nil {
			return "", &Error{Channel: "serverchan", Msg: "send_key has sctp prefix but no shard id"}
		}
		return fmt.Sprintf("https://%s.push.ft07.com/send/%s.send", m[1], key), nil
	}
	if base == "" {
		base = serverChanAPIBase
	}
	return fmt.Sprintf("%s/%s.send", strings.TrimRight(base, "/"), key), nil
}
