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

package tetra

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/radiocps/cpscore/cpserr"
)

// DefaultPort is the TCP port TETRA RP listens on.
const DefaultPort = 8002

const (
	handshakeTimeout = 5 * time.Second
	readBlockSize    = 1024
	writeBlockSize   = 512

	fallbackWindowStart = 0x0001_0000
	fallbackWindowEnd   = 0x0010_0000
)

// RejectedError reports a RejectIndication received during the handshake.
type RejectedError struct {
	Code byte
}

func (e *RejectedError) Error() string {
	return cpserr.NewProtocolError("rp-handshake", "command rejected", e.Code).Error()
}

// WriteFailureError reports a failed write block, naming the address of
// the block that failed.
type WriteFailureError struct {
	Address uint32
}

func (e *WriteFailureError) Error() string {
	return fmt.Sprintf("tetra: write failed at address 0x%08X", e.Address)
}

// Conn is the duplex, deadline-capable transport the engine needs.
type Conn interface {
	io.ReadWriteCloser
	SetDeadline(t time.Time) error
}

// Engine drives one TETRA terminal over a framed TCP connection.
type Engine struct {
	conn Conn

	programmingMode bool
}

// Dial connects to host:port (defaulting port to DefaultPort) and wraps
// the resulting TCP connection in an Engine.
func Dial(host string, port int) (*Engine, error) {
	if port == 0 {
		port = DefaultPort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, handshakeTimeout)
	if err != nil {
		return nil, cpserr.NewConnectionError("tetra: dial failed", err)
	}
	return &Engine{conn: conn}, nil
}

// NewEngine wraps an existing Conn, used by tests to drive the engine
// over a net.Pipe().
func NewEngine(conn Conn) *Engine {
	return &Engine{conn: conn}
}

// Close returns the terminal to normal mode if it is still in programming
// mode, then closes the underlying connection.
func (e *Engine) Close() error {
	if e.programmingMode {
		if err := e.LeaveProgrammingMode(); err != nil {
			log.Warnf("tetra: leaving programming mode on close failed: %v", err)
		}
	}
	return e.conn.Close()
}

func (e *Engine) writeFrame(f Frame) error {
	if err := e.conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return err
	}
	_, err := e.conn.Write(f.Marshal())
	return err
}

func (e *Engine) readFrame(timeout time.Duration) (Frame, error) {
	if err := e.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Frame{}, err
	}
	prefix := make([]byte, 2)
	if _, err := io.ReadFull(e.conn, prefix); err != nil {
		return Frame{}, timeoutOr(err)
	}
	total, err := DeclaredLength(prefix)
	if err != nil {
		return Frame{}, err
	}
	rest := make([]byte, int(total)-2)
	if _, err := io.ReadFull(e.conn, rest); err != nil {
		return Frame{}, timeoutOr(err)
	}
	return Unmarshal(append(prefix, rest...))
}

func timeoutOr(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return cpserr.NewTimeout("tetra-read")
	}
	return cpserr.NewConnectionError("tetra: read failed", err)
}

// Handshake runs TerminalIDRequest/Confirm then ParameterVersionRequest
// /Confirm/Reply, failing with RejectedError on any RejectIndication.
func (e *Engine) Handshake() error {
	if err := e.writeFrame(Frame{Opcode: OpTerminalIDRequest}); err != nil {
		return err
	}
	if err := e.expectOrReject(OpTerminalIDConfirm); err != nil {
		return err
	}

	if err := e.writeFrame(Frame{Opcode: OpParameterVersionRequest}); err != nil {
		return err
	}
	if err := e.expectOrReject(OpParameterVersionConfirm); err != nil {
		return err
	}
	if err := e.expectOrReject(OpParameterVersionReply); err != nil {
		return err
	}

	log.Debugf("tetra: handshake complete")
	return nil
}

func (e *Engine) expectOrReject(want Opcode) error {
	f, err := e.readFrame(handshakeTimeout)
	if err != nil {
		return err
	}
	if f.Opcode == OpRejectIndication {
		code := byte(0)
		if len(f.Data) > 0 {
			code = f.Data[0]
		}
		return &RejectedError{Code: code}
	}
	if f.Opcode != want {
		return cpserr.NewProtocolError("rp-handshake", "unexpected opcode", 0)
	}
	return nil
}

// EnterProgrammingMode issues ResetRequest(Programming) and waits for a
// StatusIndication, required before read or write.
func (e *Engine) EnterProgrammingMode() error {
	if err := e.writeFrame(Frame{Opcode: OpResetRequest, Data: []byte{byte(ResetProgramming)}}); err != nil {
		return err
	}
	f, err := e.readFrame(handshakeTimeout)
	if err != nil {
		return err
	}
	if f.Opcode != OpStatusIndication {
		return cpserr.NewProtocolError("programming-mode", "expected status indication", 0)
	}
	e.programmingMode = true
	return nil
}

// LeaveProgrammingMode issues ResetRequest(Normal), used on disconnect
// whether or not the operation in progress succeeded.
func (e *Engine) LeaveProgrammingMode() error {
	err := e.writeFrame(Frame{Opcode: OpResetRequest, Data: []byte{byte(ResetNormal)}})
	e.programmingMode = false
	return err
}

// memoryWindow describes the address range to read, either from a
// ConfigurationRequest reply or the fixed fallback window.
type memoryWindow struct {
	Start uint32
	End   uint32
}

func (e *Engine) memoryWindow() (memoryWindow, error) {
	if err := e.writeFrame(Frame{Opcode: OpConfigurationRequest}); err != nil {
		return memoryWindow{}, err
	}
	f, err := e.readFrame(handshakeTimeout)
	if err != nil {
		return memoryWindow{}, err
	}
	if f.Opcode == OpUnsupportedOpcodeReply {
		log.Debugf("tetra: configuration request unsupported, using fallback window")
		return memoryWindow{Start: fallbackWindowStart, End: fallbackWindowEnd}, nil
	}
	if len(f.Data) < 8 {
		return memoryWindow{Start: fallbackWindowStart, End: fallbackWindowEnd}, nil
	}
	return memoryWindow{Start: f.Address, End: f.Address + uint32(len(f.Data))}, nil
}

// MemoryWindowStart reports the start address of the configured (or
// fallback) memory window, so a caller writing back a previously-read
// image knows where to target WriteMemory.
func (e *Engine) MemoryWindowStart() (uint32, error) {
	if !e.programmingMode {
		if err := e.EnterProgrammingMode(); err != nil {
			return 0, err
		}
	}
	window, err := e.memoryWindow()
	if err != nil {
		return 0, err
	}
	return window.Start, nil
}

// ReadMemory reads the terminal's configured (or fallback) memory window
// in 1024-byte blocks using the extended read opcode, validating every
// reply's opcode class and checksum (the checksum is validated by
// Unmarshal itself).
func (e *Engine) ReadMemory() ([]byte, error) {
	if !e.programmingMode {
		if err := e.EnterProgrammingMode(); err != nil {
			return nil, err
		}
	}

	window, err := e.memoryWindow()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	addr := window.Start
	for addr < window.End {
		length := uint16(readBlockSize)
		if remaining := window.End - addr; remaining < readBlockSize {
			length = uint16(remaining)
		}
		if err := e.writeFrame(Frame{Opcode: OpExtendedReadRequest, Address: addr, Length: length}); err != nil {
			return nil, err
		}
		reply, err := e.readFrame(handshakeTimeout)
		if err != nil {
			return nil, err
		}
		if !reply.Opcode.IsReadReply() {
			return nil, cpserr.NewProtocolError("read-block", "unexpected opcode for read reply", 0)
		}
		buf.Write(reply.Data)
		addr += uint32(len(reply.Data))
	}

	return buf.Bytes(), nil
}

// WriteMemory writes data starting at window.Start (as produced by
// ReadMemory) in 512-byte blocks using the extended write opcode,
// followed by a whole-range checksum request. Aborts on the first
// non-good-write reply, issuing ResetRequest(Normal) before returning
// WriteFailureError.
func (e *Engine) WriteMemory(start uint32, data []byte) error {
	if !e.programmingMode {
		if err := e.EnterProgrammingMode(); err != nil {
			return err
		}
	}

	addr := start
	for sent := 0; sent < len(data); {
		end := sent + writeBlockSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[sent:end]

		if err := e.writeFrame(Frame{Opcode: OpExtendedWriteRequest, Address: addr, Length: uint16(len(chunk)), Data: chunk}); err != nil {
			return err
		}
		reply, err := e.readFrame(handshakeTimeout)
		if err != nil {
			return err
		}
		if reply.Opcode.IsWriteFailure() || !reply.Opcode.IsWriteAck() {
			_ = e.LeaveProgrammingMode()
			return &WriteFailureError{Address: addr}
		}

		sent = end
		addr += uint32(len(chunk))
	}

	if err := e.writeFrame(Frame{Opcode: OpExtendedChecksumRequest, Address: start, Length: uint16(len(data))}); err != nil {
		return err
	}
	reply, err := e.readFrame(handshakeTimeout)
	if err != nil {
		return err
	}
	if reply.Opcode != OpExtendedChecksumReply {
		_ = e.LeaveProgrammingMode()
		return cpserr.NewProtocolError("write-checksum", "unexpected opcode for checksum reply", 0)
	}

	return e.LeaveProgrammingMode()
}
