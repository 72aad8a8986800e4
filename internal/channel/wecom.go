package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const weComAPIBase = "https://qyapi.weixin.qq.com"

// WeCom posts a textcard message to a WeCom (enterprise WeChat)
// application. Every send exchanges the corp credentials for a fresh
// access token first; no token is cached between calls.
type WeCom struct {
	Client *http.Client
}

type weComTokenResp struct {
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
	AccessToken string `json:"access_token"`
}

type weComSendResp struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
	MsgID   string `json:"msgid"`
}

func (w *WeCom) Send(ctx context.Context, msg Message, cfg map[string]string) (string, error) {
	corpID, secret, agentID := cfg["corp_id"], cfg["app_secret"], cfg["agent_id"]
	if corpID == "" || secret == "" || agentID == "" {
		return "", &Error{Channel: "wecom", Msg: "corp_id, app_secret and agent_id are required"}
	}
	agent, err := strconv.Atoi(agentID)
	if err != nil {
		return "", &Error{Channel: "wecom", Msg: "agent_id must be numeric"}
	}

	base := cfg["api_base"]
	if base == "" {
		base = weComAPIBase
	}
	base = strings.TrimRight(base, "/")

	token, err := w.token(ctx, base, corpID, secret)
	if err != nil {
		return "", err
	}

	cardURL := cfg["url"]
	if cardURL == "" {
		cardURL = "https://work.weixin.qq.com"
	}
	payload := map[string]any{
		"touser":  cfg["touser"],
		"toparty": cfg["toparty"],
		"totag":   cfg["totag"],
		"msgtype": "textcard",
		"agentid": agent,
		"textcard": map[string]string{
			"title":       msg.Title,
			"description": msg.Content,
			"url":         cardURL,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/cgi-bin/message/send?access_token=%s", base, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out weComSendResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &Error{Channel: "wecom", Msg: "malformed send response: " + err.Error()}
	}
	if out.ErrCode != 0 {
		return "", &Error{Channel: "wecom", Code: out.ErrCode, Msg: out.ErrMsg}
	}
	return out.MsgID, nil
}

func (w *WeCom) token(ctx context.Context, base, corpID, secret string) (string, error) {
	endpoint := fmt.Sprintf("%s/cgi-bin/gettoken?corpid=%s&corpsecret=%s",
		base, url.QueryEscape(corpID), url.QueryEscape(secret))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out weComTokenResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &Error{Channel: "wecom", Msg: "malformed token response: " + err.Error()}
	}
	if out.ErrCode != 0 {
		return "", &Error{Channel: "wecom", Code: out.ErrCode, Msg: out.ErrMsg}
	}
	return out.AccessToken, nil
}
