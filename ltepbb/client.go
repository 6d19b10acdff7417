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

// Package ltepbb implements the LTE/PBB HTTP programming protocol: a
// session-scoped REST interface for authenticating, uploading or
// downloading a codeplug, and polling a background deployment job to
// completion.
package ltepbb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"github.com/radiocps/cpscore/cpserr"
)

// Fixed endpoint paths (spec section 4.8).
const (
	pathPassword         = "/password"
	pathDeviceInventory  = "/deviceInventory"
	pathAppInventory     = "/appInventory"
	pathLicenseInventory = "/licenseInventory"
	pathFileCollection   = "/fileCollection"
	pathTerminateSession = "/terminateSession"
	pathFactoryReset     = "/factoryReset"
	pathJob              = "/job"
	pathLMRCodeplug      = "/lmrCodeplug"
	pathCertificate      = "/certificate"
	pathFirmware         = "/firmware"
	pathProvisioning     = "/provisioning"
)

// HTTPDoer is the subset of *http.Client the REST client needs, so tests
// can substitute a mock transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DeviceInventory is the body returned by a successful /password
// authentication.
type DeviceInventory struct {
	Model        string `json:"model"`
	Serial       string `json:"serial"`
	Firmware     string `json:"firmware"`
	SessionToken string `json:"sessionToken"`
}

// JobStatus is the body returned by a write and polled from /job.
type JobStatus struct {
	JobID    string  `json:"jobID"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
}

// Client is a thin REST wrapper around one LTE/PBB device's HTTP API.
type Client struct {
	Doer    HTTPDoer
	BaseURL string
	token   string
}

// NewClient builds a Client talking to http://host.
func NewClient(host string, timeout time.Duration) *Client {
	return &Client{
		Doer:    &http.Client{Timeout: timeout},
		BaseURL: fmt.Sprintf("http://%s", host),
	}
}

// Authenticate posts the device password and stores the bearer token
// carried in the reply for subsequent requests.
func (c *Client) Authenticate(password string) (*DeviceInventory, error) {
	body, _ := json.Marshal(map[string]string{"password": password})
	resp, err := c.do(http.MethodPost, pathPassword, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	var inv DeviceInventory
	if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
		return nil, cpserr.NewProtocolError("password-auth", "malformed device inventory", 0)
	}

	c.token = inv.SessionToken
	if exp, err := tokenExpiry(c.token); err == nil {
		log.Debugf("ltepbb: session token expires at %s", exp)
	}
	return &inv, nil
}

// tokenExpiry decodes the unverified claims of a bearer token to log its
// expiry; the device, not this client, is the authority on the token.
func tokenExpiry(token string) (time.Time, error) {
	if token == "" {
		return time.Time{}, fmt.Errorf("ltepbb: empty token")
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("ltepbb: no exp claim")
	}
	return exp.Time, nil
}

func (c *Client) do(method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.Doer.Do(req)
	if err != nil {
		return nil, cpserr.NewConnectionError("ltepbb: request failed", err)
	}
	return resp, nil
}

// Get issues a GET against path and returns the raw response for the
// caller to interpret (octet-stream bodies, JSON bodies, and 404s all
// need different handling at the call site).
func (c *Client) Get(path string) (*http.Response, error) {
	return c.do(http.MethodGet, path, "", nil)
}

// PostJSON posts a JSON-encoded body and returns the raw response.
func (c *Client) PostJSON(path string, v any) (*http.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return c.do(http.MethodPost, path, "application/json", bytes.NewReader(body))
}

// PostOctetStream posts raw bytes with an octet-stream content type.
func (c *Client) PostOctetStream(path string, data []byte) (*http.Response, error) {
	return c.do(http.MethodPost, path, "application/octet-stream", bytes.NewReader(data))
}

func classifyStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return cpserr.NewHTTPStatusError(resp.StatusCode, string(body))
}
