/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ltepbb

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// scriptedResponse describes one canned HTTP reply keyed by method+path.
type scriptedResponse struct {
	status int
	body   []byte
}

// scriptedDoer implements HTTPDoer, replying from a map keyed by
// "METHOD path" and recording every request it saw.
type scriptedDoer struct {
	responses map[string]scriptedResponse
	requests  []*http.Request
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	d.requests = append(d.requests, req)
	key := req.Method + " " + req.URL.Path
	if req.URL.RawQuery != "" {
		key = req.Method + " " + req.URL.Path + "?" + req.URL.RawQuery
	}
	resp, ok := d.responses[key]
	if !ok {
		resp = d.responses[req.Method+" "+req.URL.Path]
	}
	return &http.Response{
		StatusCode: resp.status,
		Body:       io.NopCloser(bytes.NewReader(resp.body)),
		Header:     make(http.Header),
	}, nil
}

func signedTestToken(t *testing.T, exp int64) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestClientAuthenticateStoresToken(t *testing.T) {
	tok := signedTestToken(t, 9999999999)
	inv := DeviceInventory{Model: "LEX L10", Serial: "L-001", Firmware: "1.2.3", SessionToken: tok}
	body, err := json.Marshal(inv)
	require.NoError(t, err)

	doer := &scriptedDoer{responses: map[string]scriptedResponse{
		"POST /password": {status: http.StatusOK, body: body},
	}}
	c := &Client{Doer: doer, BaseURL: "http://radio"}

	got, err := c.Authenticate("hunter2")
	require.NoError(t, err)
	require.Equal(t, "LEX L10", got.Model)
	require.Equal(t, tok, c.token)

	_, _ = c.Get(pathDeviceInventory)
	require.Equal(t, "Bearer "+tok, doer.requests[len(doer.requests)-1].Header.Get("Authorization"))
}

func TestClientAuthenticateRejectsBadPassword(t *testing.T) {
	doer := &scriptedDoer{responses: map[string]scriptedResponse{
		"POST /password": {status: http.StatusUnauthorized, body: []byte(`{}`)},
	}}
	c := &Client{Doer: doer, BaseURL: "http://radio"}

	_, err := c.Authenticate("wrong")
	require.Error(t, err)
	require.Contains(t, err.Error(), "AuthenticationFailed")
}
