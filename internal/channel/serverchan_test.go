package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerChanEndpoint(t *testing.T) {
	got, err := serverChanEndpoint("sctp12345tXYZ", "")
	require.NoError(t, err)
	assert.Equal(t, "https://12345.push.ft07.com/send/sctp12345tXYZ.send", got)

	got, err = serverChanEndpoint("SCT0000KEY", "")
	require.NoError(t, err)
	assert.Equal(t, "https://sctapi.ftqq.com/SCT0000KEY.send", got)

	got, err = serverChanEndpoint("SCT0000KEY", "http://127.0.0.1:9999/")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999/SCT0000KEY.send", got)
}

func TestServerChanEndpointBadShardKey(t *testing.T) {
	_, err := serverChanEndpoint("sctpXYZ", "")
	var chErr *Error
	require.ErrorAs(t, err, &chErr)
	assert.Contains(t, chErr.Msg, "shard id")
}

func TestServerChanSend(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0, "message": "", "data": map[string]any{"pushid": "p123"},
		})
	}))
	defer srv.Close()

	s := &ServerChan{Client: srv.Client()}
	msg := Message{Title: "hello", Content: "body text", Overrides: map[string]string{"short": "hi"}}
	cfg := map[string]string{"send_key": "SCTKEY", "api_base": srv.URL}

	id, err := s.Send(context.Background(), msg, cfg)
	require.NoError(t, err)
	assert.Equal(t, "p123", id)
	assert.Equal(t, "/SCTKEY.send", gotPath)
	assert.Equal(t, "hello", gotBody["title"])
	assert.Equal(t, "body text", gotBody["desp"])
	assert.Equal(t, "hi", gotBody["short"], "task overrides spread into the body")
}

func TestServerChanProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// transport-level 200, failure only in the payload
		json.NewEncoder(w).Encode(map[string]any{"code": 40001, "message": "bad key"})
	}))
	defer srv.Close()

	s := &ServerChan{Client: srv.Client()}
	_, err := s.Send(context.Background(), Message{Title: "x"}, map[string]string{"send_key": "k", "api_base": srv.URL})

	var chErr *Error
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, 40001, chErr.Code)
}

func TestServerChanMissingKey(t *testing.T) {
	s := &ServerChan{Client: http.DefaultClient}
	_, err := s.Send(context.Background(), Message{}, map[string]string{})
	var chErr *Error
	require.ErrorAs(t, err, &chErr)
	assert.Contains(t, chErr.Msg, "send_key")
}

func TestServerChanMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	s := &ServerChan{Client: srv.Client()}
	_, err := s.Send(context.Background(), Message{}, map[string]string{"send_key": "k", "api_base": srv.URL})
	var chErr *Error
	require.ErrorAs(t, err, &chErr)
	assert.Contains(t, chErr.Msg, "malformed response")
}
