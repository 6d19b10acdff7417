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

// Package mototrbo implements the CPS 2.0 portable transfer engine:
// identify, the indexed-record read flow, and the PSDT partition-addressed
// block read/write flow, all carried over one authenticated XNL session.
package mototrbo

import (
	"bytes"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/radiocps/cpscore/codeplug"
	"github.com/radiocps/cpscore/cpserr"
	"github.com/radiocps/cpscore/xcmp"
)

// defaultTimeout bounds a single XCMP request-reply exchange.
const defaultTimeout = 5 * time.Second

// psdtSessionID is the caller-chosen, non-zero session identifier used
// for every component-session request issued by this engine.
const psdtSessionID = 0x0001

// cpsReadChunk is the maximum bytes requested per CPSRead call during a
// PSDT block read.
const cpsReadChunk = 1024

// transferChunk is the block size used for TransferData writes.
const transferChunk = 512

// Budgets for the long-running write-flow component-session steps (spec
// section 4.6).
const (
	crcValidateBudget  = 30 * time.Second
	unpackDeployBudget = 60 * time.Second
)

// ProgressFunc reports a monotonically non-decreasing completion fraction.
type ProgressFunc func(fraction float64)

func noopProgress(float64) {}

// Engine drives one MOTOTRBO radio over its XCMP client.
type Engine struct {
	client *xcmp.Client
}

// New wraps transport in an Engine.
func New(transport xcmp.Transport) *Engine {
	return &Engine{client: xcmp.NewClient(transport, defaultTimeout)}
}

// Identify issues the CPS 2.0 identify chain on the current session,
// tolerating per-field failures per spec section 4.6.
func (e *Engine) Identify() (codeplug.Identity, error) {
	var id codeplug.Identity

	if key, err := e.client.SecurityKey(); err != nil {
		return codeplug.Identity{}, err
	} else if !key.OK {
		log.Warnf("mototrbo: security key field unavailable, err byte 0x%02X", key.ErrorCode)
	}

	if model, err := e.client.Model(); err != nil {
		return codeplug.Identity{}, err
	} else if model.OK {
		id.Model = model.Value
	} else {
		log.Warnf("mototrbo: model field unavailable, err byte 0x%02X", model.ErrorCode)
	}

	if serial, err := e.client.Serial(); err != nil {
		return codeplug.Identity{}, err
	} else if serial.OK {
		id.Serial = serial.Value
	} else {
		log.Warnf("mototrbo: serial field unavailable, err byte 0x%02X", serial.ErrorCode)
	}

	if fw, err := e.client.Firmware(); err != nil {
		return codeplug.Identity{}, err
	} else if fw.OK {
		id.Firmware = fw.Value
	} else {
		log.Warnf("mototrbo: firmware field unavailable, err byte 0x%02X", fw.ErrorCode)
	}

	if cpid, err := e.client.CodeplugID(); err != nil {
		return codeplug.Identity{}, err
	} else if cpid.OK {
		id.CodeplugID = cpid.Value
	} else {
		log.Warnf("mototrbo: codeplug ID field unavailable, err byte 0x%02X", cpid.ErrorCode)
	}

	id.RadioFamily = codeplug.RadioFamily(id.Model)
	return id, nil
}

// ReadRecords issues CodeplugRead in batches of 5 for recordIDs and
// returns every parsed record frame across all batches, per spec section
// 4.6 and the batching scenario in spec section 8.
func (e *Engine) ReadRecords(recordIDs []uint16) ([]codeplug.RecordFrame, error) {
	var frames []codeplug.RecordFrame
	for _, batch := range codeplug.BatchRecordIDs(recordIDs) {
		raw, err := e.client.CodeplugRead(batch)
		if err != nil {
			return nil, err
		}
		parsed, err := codeplug.ParseRecordStream(raw)
		if err != nil {
			return nil, err
		}
		frames = append(frames, parsed...)
	}
	return frames, nil
}

// psdtPartitionID is the well-known codeplug partition name.
const psdtPartitionID = "CP"

// ReadCodeplug runs the PSDT block-read flow and returns the raw
// partition bytes, reporting progress per the fixed weights in spec
// section 4.6.
func (e *Engine) ReadCodeplug(progress ProgressFunc) ([]byte, error) {
	if progress == nil {
		progress = noopProgress
	}

	if err := e.client.ComponentSession(xcmp.SessionStartSession|xcmp.SessionReadWrite, psdtSessionID, nil); err != nil {
		return nil, err
	}
	progress(0.1)

	bounds, err := e.client.PSDTPartitionBounds(psdtPartitionID)
	if err != nil {
		return nil, err
	}
	if err := e.client.PSDTUnlock(psdtPartitionID); err != nil {
		return nil, err
	}
	progress(0.25)

	total := bounds.Size()
	buf := make([]byte, 0, total)
	addr := bounds.Start
	for uint32(len(buf)) < total {
		remaining := total - uint32(len(buf))
		chunkLen := uint16(cpsReadChunk)
		if remaining < cpsReadChunk {
			chunkLen = uint16(remaining)
		}
		chunk, err := e.client.CPSRead(addr, chunkLen)
		if err != nil {
			return nil, err
		}
		buf = append(buf, chunk...)
		addr += uint32(len(chunk))
		progress(0.25 + 0.65*float64(len(buf))/float64(total))
	}

	if err := e.client.ComponentSession(xcmp.SessionCreateArchive, psdtSessionID, nil); err != nil {
		return nil, err
	}
	if err := e.client.ComponentSession(xcmp.SessionReset, psdtSessionID, nil); err != nil {
		return nil, err
	}
	progress(1.0)

	return buf, nil
}

// resetSession issues a best-effort component-session reset, used for
// teardown on both success and error paths.
func (e *Engine) resetSession() {
	if err := e.client.ComponentSession(xcmp.SessionReset, psdtSessionID, nil); err != nil {
		log.Warnf("mototrbo: best-effort session reset failed: %v", err)
	}
}

// WriteCodeplug runs the PSDT block-write flow: start, update control,
// unlock, chunked transfer, CRC validation, unpack+deploy, revalidate,
// lock, reset. Any non-zero status aborts with ProtocolError and resets
// the session before returning.
func (e *Engine) WriteCodeplug(data []byte, progress ProgressFunc) error {
	if progress == nil {
		progress = noopProgress
	}

	actions := xcmp.SessionStartSession | xcmp.SessionReadWrite | xcmp.SessionProgrammingIndicator
	if err := e.client.ComponentSession(actions, psdtSessionID, nil); err != nil {
		e.resetSession()
		return err
	}
	progress(0.05)

	if err := e.client.RadioUpdateControl(xcmp.RadioUpdateCodeplug); err != nil {
		e.resetSession()
		return err
	}

	if err := e.client.PSDTUnlock(psdtPartitionID); err != nil {
		e.resetSession()
		return err
	}
	progress(0.1)

	total := len(data)
	sent := 0
	for sent < total {
		end := sent + transferChunk
		if end > total {
			end = total
		}
		if err := e.client.TransferData(xcmp.TransferCompressFile, data[sent:end]); err != nil {
			e.resetSession()
			return cpserr.NewProtocolError("transfer-data", "block transfer rejected", 0)
		}
		sent = end
		progress(0.1 + 0.6*float64(sent)/float64(total))
	}

	if err := e.client.ComponentSessionTimeout(xcmp.SessionValidateCRC, psdtSessionID, nil, crcValidateBudget); err != nil {
		e.resetSession()
		return err
	}
	progress(0.8)

	if err := e.client.ComponentSessionTimeout(xcmp.SessionUnpackFiles|xcmp.SessionDeploy, psdtSessionID, nil, unpackDeployBudget); err != nil {
		e.resetSession()
		return err
	}
	progress(0.9)

	if err := e.client.RadioUpdateControl(xcmp.RadioValidateCodeplug); err != nil {
		e.resetSession()
		return err
	}

	if err := e.client.PSDTLock(psdtPartitionID); err != nil {
		e.resetSession()
		return err
	}

	e.resetSession()
	progress(1.0)
	return nil
}

// Verify reads the codeplug back and compares it byte-for-byte to
// expected.
func (e *Engine) Verify(expected []byte, progress ProgressFunc) (bool, error) {
	actual, err := e.ReadCodeplug(progress)
	if err != nil {
		return false, err
	}
	return bytes.Equal(actual, expected), nil
}
