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

// Package dispatch probes a host against the MOTOTRBO, LTE/PBB, and
// TETRA engines in turn, then presents whichever one answered through a
// single uniform facade.
package dispatch

import (
	"bytes"
	"time"

	version "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/radiocps/cpscore/codeplug"
	"github.com/radiocps/cpscore/cpserr"
	"github.com/radiocps/cpscore/ltepbb"
	"github.com/radiocps/cpscore/mototrbo"
	"github.com/radiocps/cpscore/tetra"
	"github.com/radiocps/cpscore/xnl"
)

const (
	mototrboPort = 8002
	tetraPort    = 8002

	probeTimeout = 5 * time.Second
)

// serialOnlyFamilies names radio families this dispatcher never reaches
// over the network, per spec section 4.9: they're programmed over a
// direct USB/serial cable.
var serialOnlyFamilies = map[string]bool{
	"clp": true,
	"cls": true,
	"dlr": true,
	"dtr": true,
}

// ProgressFunc receives monotonically non-decreasing progress fractions
// in [0, 1].
type ProgressFunc func(fraction float64)

// Engine is the uniform facade every probed protocol is adapted to.
type Engine interface {
	Identify() (codeplug.Identity, error)
	ReadCodeplug(progress ProgressFunc) ([]byte, error)
	WriteCodeplug(data []byte, progress ProgressFunc) error
	Verify(expected []byte, progress ProgressFunc) (bool, error)
	Close() error
}

// Options configures the optional, protocol-specific inputs Detect needs
// before it can complete a given engine's identify step.
type Options struct {
	// LTEPassword authenticates the LTE/PBB /password endpoint. Empty
	// posts an empty password to that same endpoint.
	LTEPassword string
	// KnownFamily, if set, short-circuits detection: a serial-only
	// family fails fast with NotSupported instead of attempting any
	// network probe.
	KnownFamily string
	// MinimumFirmware, if set, rejects a radio that answers with an
	// older firmware version than this (compared as a go-version
	// version string). A radio that doesn't report a parseable firmware
	// field is allowed through.
	MinimumFirmware string
}

// Detect probes host against MOTOTRBO, then LTE, then TETRA, in that
// fixed order, and returns the first engine whose identify succeeds.
func Detect(host string, opts Options) (Engine, codeplug.Identity, error) {
	if opts.KnownFamily != "" && serialOnlyFamilies[opts.KnownFamily] {
		return nil, codeplug.Identity{}, cpserr.NewNotSupported("family " + opts.KnownFamily + " is serial-only")
	}

	if eng, id, err := probeMototrbo(host); err == nil {
		return gateFirmware(eng, id, opts.MinimumFirmware)
	} else {
		log.Debugf("dispatch: mototrbo probe failed: %v", err)
	}

	if eng, id, err := probeLTE(host, opts.LTEPassword); err == nil {
		return gateFirmware(eng, id, opts.MinimumFirmware)
	} else {
		log.Debugf("dispatch: lte probe failed: %v", err)
	}

	if eng, id, err := probeTetra(host); err == nil {
		return gateFirmware(eng, id, opts.MinimumFirmware)
	} else {
		log.Debugf("dispatch: tetra probe failed: %v", err)
	}

	return nil, codeplug.Identity{}, cpserr.NewConnectionError("dispatch: no protocol answered on "+host, nil)
}

// gateFirmware rejects eng if id reports a firmware version older than
// minimum, closing eng first so its underlying transport doesn't leak.
func gateFirmware(eng Engine, id codeplug.Identity, minimum string) (Engine, codeplug.Identity, error) {
	if minimum == "" || id.Firmware == "" {
		return eng, id, nil
	}
	want, err := version.NewVersion(minimum)
	if err != nil {
		log.Warnf("dispatch: invalid MinimumFirmware %q: %v", minimum, err)
		return eng, id, nil
	}
	got, err := version.NewVersion(id.Firmware)
	if err != nil {
		log.Debugf("dispatch: radio firmware %q isn't a parseable version, skipping gate", id.Firmware)
		return eng, id, nil
	}
	if got.LessThan(want) {
		_ = eng.Close()
		return nil, codeplug.Identity{}, cpserr.NewNotSupported(
			"radio firmware " + id.Firmware + " is older than required minimum " + minimum)
	}
	return eng, id, nil
}

func probeMototrbo(host string) (Engine, codeplug.Identity, error) {
	session, err := xnl.Dial(host, mototrboPort)
	if err != nil {
		return nil, codeplug.Identity{}, err
	}
	if err := session.Authenticate(); err != nil {
		session.Close()
		return nil, codeplug.Identity{}, err
	}

	engine := mototrbo.New(session)
	id, err := engine.Identify()
	if err != nil {
		session.Close()
		return nil, codeplug.Identity{}, err
	}
	if serialOnlyFamilies[id.RadioFamily] {
		session.Close()
		return nil, codeplug.Identity{}, cpserr.NewNotSupported("family " + id.RadioFamily + " is serial-only")
	}
	return &mototrboAdapter{engine: engine, session: session}, id, nil
}

func probeLTE(host, password string) (Engine, codeplug.Identity, error) {
	client := ltepbb.NewClient(host, probeTimeout)
	engine := ltepbb.New(client)
	id, err := engine.Identify(password)
	if err != nil {
		return nil, codeplug.Identity{}, err
	}
	if serialOnlyFamilies[id.RadioFamily] {
		return nil, codeplug.Identity{}, cpserr.NewNotSupported("family " + id.RadioFamily + " is serial-only")
	}
	return &ltepbbAdapter{engine: engine, password: password}, id, nil
}

func probeTetra(host string) (Engine, codeplug.Identity, error) {
	engine, err := tetra.Dial(host, tetraPort)
	if err != nil {
		return nil, codeplug.Identity{}, err
	}
	if err := engine.Handshake(); err != nil {
		engine.Close()
		return nil, codeplug.Identity{}, err
	}
	id := codeplug.Identity{RadioFamily: "tetra"}
	return &tetraAdapter{engine: engine}, id, nil
}

// mototrboAdapter satisfies Engine for a mototrbo.Engine bound to its
// owning xnl.Session, which it tears down on Close.
type mototrboAdapter struct {
	engine  *mototrbo.Engine
	session *xnl.Session
}

func (a *mototrboAdapter) Identify() (codeplug.Identity, error) { return a.engine.Identify() }
func (a *mototrboAdapter) ReadCodeplug(progress ProgressFunc) ([]byte, error) {
	return a.engine.ReadCodeplug(mototrbo.ProgressFunc(progress))
}
func (a *mototrboAdapter) WriteCodeplug(data []byte, progress ProgressFunc) error {
	return a.engine.WriteCodeplug(data, mototrbo.ProgressFunc(progress))
}
func (a *mototrboAdapter) Verify(expected []byte, progress ProgressFunc) (bool, error) {
	return a.engine.Verify(expected, mototrbo.ProgressFunc(progress))
}
func (a *mototrboAdapter) Close() error { return a.session.Close() }

// ltepbbAdapter satisfies Engine for an ltepbb.Engine; LTE's Identify
// additionally needs a password, captured at probe time.
type ltepbbAdapter struct {
	engine   *ltepbb.Engine
	password string
}

func (a *ltepbbAdapter) Identify() (codeplug.Identity, error) { return a.engine.Identify(a.password) }
func (a *ltepbbAdapter) ReadCodeplug(progress ProgressFunc) ([]byte, error) {
	return a.engine.ReadCodeplug()
}
func (a *ltepbbAdapter) WriteCodeplug(data []byte, progress ProgressFunc) error {
	return a.engine.WriteCodeplug(data, ltepbb.ProgressFunc(progress))
}
func (a *ltepbbAdapter) Verify(expected []byte, progress ProgressFunc) (bool, error) {
	return a.engine.Verify(expected)
}
func (a *ltepbbAdapter) Close() error { return nil }

// tetraAdapter satisfies Engine for a tetra.Engine. TETRA's RP protocol
// carries no model/serial query, so Identify reports only the "tetra"
// family tag and leaves every other identity field empty.
type tetraAdapter struct {
	engine *tetra.Engine
}

func (a *tetraAdapter) Identify() (codeplug.Identity, error) {
	return codeplug.Identity{RadioFamily: "tetra"}, nil
}
func (a *tetraAdapter) ReadCodeplug(progress ProgressFunc) ([]byte, error) {
	data, err := a.engine.ReadMemory()
	if progress != nil && err == nil {
		progress(1.0)
	}
	return data, err
}
func (a *tetraAdapter) WriteCodeplug(data []byte, progress ProgressFunc) error {
	start, err := a.engine.MemoryWindowStart()
	if err != nil {
		return err
	}
	err = a.engine.WriteMemory(start, data)
	if progress != nil && err == nil {
		progress(1.0)
	}
	return err
}
func (a *tetraAdapter) Verify(expected []byte, progress ProgressFunc) (bool, error) {
	data, err := a.ReadCodeplug(progress)
	if err != nil {
		return false, err
	}
	return bytes.Equal(data, expected), nil
}
func (a *tetraAdapter) Close() error { return a.engine.Close() }
