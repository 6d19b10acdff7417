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
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/radiocps/cpscore/codeplug"
	"github.com/radiocps/cpscore/cpserr"
)

const (
	jobPollInterval = 500 * time.Millisecond
	jobPollBudget   = 120 * time.Second
	manifestFile    = "codeplug.manifest"
)

// ProgressFunc receives monotonically non-decreasing progress fractions
// in [0, 1].
type ProgressFunc func(fraction float64)

func noopProgress(float64) {}

// sessionOperation names the operation a session was opened for, used
// only for logging.
type sessionOperation string

const (
	opRead   sessionOperation = "Read"
	opWrite  sessionOperation = "Write"
	opUpdate sessionOperation = "Update"
)

// session is the locally-tracked LTE session descriptor (spec section 2
// glossary): a random session id, the operation it was opened for, and
// its start time.
type session struct {
	ID        uint16
	Operation sessionOperation
	StartedAt time.Time
}

func newSession(op sessionOperation) session {
	return session{ID: uint16(1 + rand.Intn(0xFFFE)), Operation: op, StartedAt: time.Now()}
}

// Engine drives one LTE/PBB device over HTTP.
type Engine struct {
	client *Client

	// ProgressSink, if set, additionally receives every job-poll progress
	// frame as a JSON websocket message, for live monitoring.
	ProgressSink *websocket.Conn
}

// New builds an Engine using the given Client.
func New(client *Client) *Engine {
	return &Engine{client: client}
}

// Identify authenticates with password and returns the device inventory
// translated to the shared Identity shape.
func (e *Engine) Identify(password string) (codeplug.Identity, error) {
	inv, err := e.client.Authenticate(password)
	if err != nil {
		return codeplug.Identity{}, err
	}
	id := codeplug.Identity{
		Model:    inv.Model,
		Serial:   inv.Serial,
		Firmware: inv.Firmware,
	}
	id.RadioFamily = codeplug.RadioFamily(id.Model)
	return id, nil
}

// ReadCodeplug opens a read session, fetches /lmrCodeplug (falling back
// to the /fileCollection manifest on 404), then always terminates the
// session.
func (e *Engine) ReadCodeplug() ([]byte, error) {
	sess := newSession(opRead)
	defer e.terminate(sess, false)

	resp, err := e.client.Get(pathLMRCodeplug)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		log.Debugf("ltepbb: lmrCodeplug absent, falling back to fileCollection manifest")
		resp2, err := e.client.Get(fmt.Sprintf("%s?fileName=%s", pathFileCollection, manifestFile))
		if err != nil {
			return nil, err
		}
		defer resp2.Body.Close()
		if resp2.StatusCode != http.StatusOK {
			return nil, classifyStatus(resp2)
		}
		return io.ReadAll(resp2.Body)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}
	return io.ReadAll(resp.Body)
}

// WriteCodeplug opens a write session, posts data to /lmrCodeplug, and if
// the response is a JobStatus polls /job until the job reaches a
// terminal state or the poll budget is exhausted. The session is always
// terminated with pending_deploy=true, success or failure.
func (e *Engine) WriteCodeplug(data []byte, progress ProgressFunc) error {
	if progress == nil {
		progress = noopProgress
	}
	sess := newSession(opWrite)
	defer e.terminate(sess, true)

	resp, err := e.client.PostOctetStream(pathLMRCodeplug, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return classifyStatus(resp)
	}

	var job JobStatus
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, &job); err != nil || job.JobID == "" {
		// no job body: the upload completed synchronously.
		progress(1.0)
		return nil
	}

	return e.pollJob(job.JobID, progress)
}

func (e *Engine) pollJob(jobID string, progress ProgressFunc) error {
	deadline := time.Now().Add(jobPollBudget)
	for {
		resp, err := e.client.Get(fmt.Sprintf("%s?jobID=%s", pathJob, jobID))
		if err != nil {
			return err
		}
		var job JobStatus
		decodeErr := json.NewDecoder(resp.Body).Decode(&job)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return classifyStatus(resp)
		}
		if decodeErr != nil {
			return cpserr.NewProtocolError("job-poll", "malformed job status", 0)
		}

		e.pushProgress(job)
		progress(job.Progress)

		switch job.Status {
		case "complete", "completed":
			progress(1.0)
			return nil
		case "failed", "error":
			return cpserr.NewJobFailed(jobID, job.Message)
		}

		if time.Now().After(deadline) {
			return cpserr.NewTimeout("lte-job-poll")
		}
		time.Sleep(jobPollInterval)
	}
}

func (e *Engine) pushProgress(job JobStatus) {
	if e.ProgressSink == nil {
		return
	}
	if err := e.ProgressSink.WriteJSON(job); err != nil {
		log.Warnf("ltepbb: progress sink write failed: %v", err)
	}
}

// terminate always posts /terminateSession, best-effort, logging any
// failure rather than returning it since the primary operation's result
// already determined the caller's outcome.
func (e *Engine) terminate(sess session, pendingDeploy bool) {
	resp, err := e.client.PostJSON(pathTerminateSession, map[string]any{
		"sessionID":      sess.ID,
		"pending_deploy": pendingDeploy,
	})
	if err != nil {
		log.Warnf("ltepbb: terminateSession failed: %v", err)
		return
	}
	resp.Body.Close()
}

// Verify reads the codeplug back and compares it byte-for-byte to
// expected.
func (e *Engine) Verify(expected []byte) (bool, error) {
	data, err := e.ReadCodeplug()
	if err != nil {
		return false, err
	}
	return bytes.Equal(data, expected), nil
}
