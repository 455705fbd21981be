// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package admin

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/stakemesh/log"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/runtime"
)

type fakeChain struct {
	head runtime.Head
	ok   bool
	err  error
}

func (c *fakeChain) Best() (runtime.Head, bool, error) { return c.head, c.ok, c.err }

func serve(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, path, r)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLogLevel(t *testing.T) {
	var level slog.LevelVar
	level.Set(log.LevelInfo)
	h := HTTPHandler(&level, &fakeChain{}, nil)

	rr := serve(t, h, http.MethodGet, "/admin/loglevel", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var res logLevelResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, "info", res.CurrentLevel)

	rr = serve(t, h, http.MethodPost, "/admin/loglevel", []byte(`{"level":"debug"}`))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, "debug", res.CurrentLevel)
	assert.Equal(t, log.LevelDebug, level.Level())
}

func TestLogLevelInvalid(t *testing.T) {
	var level slog.LevelVar
	level.Set(log.LevelInfo)
	h := HTTPHandler(&level, &fakeChain{}, nil)

	tests := []struct {
		name   string
		method string
		body   []byte
		code   int
		msg    string
	}{
		{"unknown level", http.MethodPost, []byte(`{"level":"loud"}`), http.StatusBadRequest, "Invalid verbosity level"},
		{"bad body", http.MethodPost, []byte(`level=debug`), http.StatusBadRequest, "Invalid request body"},
		{"bad method", http.MethodPut, nil, http.StatusMethodNotAllowed, "method not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, h, tt.method, "/admin/loglevel", tt.body)
			require.Equal(t, tt.code, rr.Code)
			var res errorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
			assert.Equal(t, tt.msg, res.ErrorMessage)
		})
	}
	assert.Equal(t, log.LevelInfo, level.Level())
}

func TestHead(t *testing.T) {
	var level slog.LevelVar
	chain := &fakeChain{}
	h := HTTPHandler(&level, chain, nil)

	rr := serve(t, h, http.MethodGet, "/admin/head", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	chain.head = runtime.Head{Number: 7, Timestamp: 42_000, Digest: mesh.Blake2b([]byte("seven"))}
	chain.ok = true
	rr = serve(t, h, http.MethodGet, "/admin/head", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var res headResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, headResponse{Number: 7, Timestamp: 42_000, Digest: chain.head.Digest}, res)

	chain.err = errors.New("disk on fire")
	rr = serve(t, h, http.MethodGet, "/admin/head", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestStartServer(t *testing.T) {
	var level slog.LevelVar
	url, stop, err := StartServer("127.0.0.1:0", &level, &fakeChain{}, nil)
	require.NoError(t, err)
	defer stop()

	resp, err := http.Get(url + "/loglevel")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
