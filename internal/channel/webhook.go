package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// Webhook posts the message to an arbitrary HTTP endpoint. Unlike the
// hosted providers, failure is signaled by the transport status code:
// anything >= 400 fails the send. Config keys: url (required), method
// (default POST), and header_<name> entries forwarded as headers.
type Webhook struct {
	Client *http.Client
}

func (h *Webhook) Send(ctx context.Context, msg Message, cfg map[string]string) (string, error) {
	target := cfg["url"]
	if target == "" {
		return "", &Error{Channel: "webhook", Msg: "url is required"}
	}
	method := cfg["method"]
	if method == "" {
		method = http.MethodPost
	}

	body := map[string]string{"title": msg.Title, "content": msg.Content}
	for k, v := range msg.Overrides {
		if k == "url" || k == "method" || strings.HasPrefix(k, "header_") {
			continue
		}
		body[k] = v
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg {
		if name := strings.TrimPrefix(k, "header_"); name != k && name != "" {
			req.Header.Set(name, v)
		}
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", &Error{Channel: "webhook", Code: resp.StatusCode, Msg: strings.TrimSpace(string(respBody))}
	}
	return resp.Status, nil
}
