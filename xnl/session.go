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

package xnl

import (
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/radiocps/cpscore/cpserr"
	"github.com/radiocps/cpscore/tea"
)

// DefaultPort is the MOTOTRBO/TETRA CPS TCP port.
const DefaultPort = 8002

// selfAddress is this host's starting XNL address before the radio
// assigns it a session address.
const selfAddress uint16 = 0x0001

// deviceType is the fixed "device type" byte this client advertises in
// DeviceConnectionRequest.
const deviceType byte = 0x0A

// maxDuplexIterations bounds the number of unrelated frames SendXCMP will
// discard while waiting for a DataMessage/DataMessageAck reply.
const maxDuplexIterations = 10

// handshakeTimeout is the per-step deadline during connect/authenticate.
const handshakeTimeout = 5 * time.Second

// Conn is the subset of net.Conn the session needs; it exists so tests
// can substitute net.Pipe() or an in-memory fake.
type Conn interface {
	io.ReadWriteCloser
	SetDeadline(t time.Time) error
}

// Session is one authenticated XNL connection to a radio. It owns its
// transport exclusively: at most one request/response exchange is
// outstanding at a time, matching the single-flight contract of spec
// section 5.
type Session struct {
	conn Conn

	connected       bool
	masterAddress   uint16
	selfAddr        uint16
	assignedAddress uint16
	nextTxID        uint16
}

// Dial connects to host:port and returns an unauthenticated Session. Call
// Authenticate next.
func Dial(host string, port int) (*Session, error) {
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", addr, handshakeTimeout)
	if err != nil {
		return nil, cpserr.NewConnectionError("dial "+addr, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		setKeepaliveAndNoDelay(tcpConn)
	}
	return NewSession(conn), nil
}

// setKeepaliveAndNoDelay disables Nagle's algorithm and enables TCP
// keepalive on conn, logging rather than failing the dial if the
// platform-specific socket options can't be set.
func setKeepaliveAndNoDelay(conn *net.TCPConn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		log.Debugf("xnl: SyscallConn failed, skipping socket tuning: %v", err)
		return
	}
	ctrlErr := raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			log.Debugf("xnl: TCP_NODELAY failed: %v", err)
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
			log.Debugf("xnl: SO_KEEPALIVE failed: %v", err)
		}
	})
	if ctrlErr != nil {
		log.Debugf("xnl: socket control failed, skipping socket tuning: %v", ctrlErr)
	}
}

// NewSession wraps an already-connected transport. Exposed for tests.
func NewSession(conn Conn) *Session {
	return &Session{
		conn:     conn,
		selfAddr: selfAddress,
	}
}

// Authenticated reports whether the session completed the handshake;
// spec invariant: authenticated iff assignedAddress != 0.
func (s *Session) Authenticated() bool { return s.assignedAddress != 0 }

// Close closes the underlying transport.
func (s *Session) Close() error {
	s.connected = false
	return s.conn.Close()
}

func (s *Session) nextTransactionID() uint16 {
	s.nextTxID++
	return s.nextTxID
}

func (s *Session) writeFrame(f Frame) error {
	if err := s.conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return cpserr.NewConnectionError("set write deadline", err)
	}
	if _, err := s.conn.Write(f.Marshal()); err != nil {
		return cpserr.NewConnectionError("write frame", err)
	}
	return nil
}

// readFrame reads exactly one XNL frame off the wire: the 2-byte length
// prefix first, then exactly length-2 more bytes. The stream carries no
// delimiters, so short reads must be retried until the declared byte
// count is satisfied.
func (s *Session) readFrame(timeout time.Duration) (Frame, error) {
	if err := s.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Frame{}, cpserr.NewConnectionError("set read deadline", err)
	}

	prefix := make([]byte, 2)
	if _, err := io.ReadFull(s.conn, prefix); err != nil {
		if isTimeout(err) {
			return Frame{}, cpserr.NewTimeout("frame length prefix")
		}
		return Frame{}, cpserr.NewConnectionError("read length prefix", err)
	}

	total, err := DeclaredLength(prefix)
	if err != nil {
		return Frame{}, err
	}
	if int(total) < headerSize {
		return Frame{}, ErrShortFrame
	}

	rest := make([]byte, int(total)-2)
	if _, err := io.ReadFull(s.conn, rest); err != nil {
		if isTimeout(err) {
			return Frame{}, cpserr.NewTimeout("frame body")
		}
		return Frame{}, cpserr.NewConnectionError("read frame body", err)
	}

	return Unmarshal(append(prefix, rest...))
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// Authenticate runs the full XNL handshake (spec section 4.3): master
// query, auth-key exchange, TEA challenge/response, connection request.
// On success Authenticated() becomes true and assignedAddress is set.
func (s *Session) Authenticate() error {
	if err := s.writeFrame(Frame{Opcode: OpDeviceMasterQuery, Dest: 0, Src: 0, TxID: 0}); err != nil {
		return err
	}

	masterFrame, err := s.awaitOpcode(OpMasterStatusBroadcast, handshakeTimeout)
	if err != nil {
		return err
	}
	if len(masterFrame.Payload) < 10 {
		return cpserr.NewProtocolError("master-status", "payload too short for master address", 0)
	}
	s.masterAddress = be16(masterFrame.Payload[8:10])
	log.Debugf("xnl: master address 0x%04X", s.masterAddress)

	authTxID := s.nextTransactionID()
	if err := s.writeFrame(Frame{
		Opcode: OpDeviceAuthKeyRequest,
		Dest:   s.masterAddress,
		Src:    s.selfAddr,
		TxID:   authTxID,
	}); err != nil {
		return err
	}

	replyFrame, err := s.awaitOneOf(handshakeTimeout, OpDeviceAuthKeyReply, OpMasterStatusBroadcast)
	if err != nil {
		return err
	}
	// Absorb any extra MasterStatusBroadcast frames the radio sends while
	// it prepares the auth-key reply (spec section 7: bounded in-loop
	// retry, not a fatal condition).
	iterations := 0
	for replyFrame.Opcode == OpMasterStatusBroadcast && iterations < maxDuplexIterations {
		log.Warnf("xnl: absorbing extra MasterStatusBroadcast during auth handshake")
		replyFrame, err = s.awaitOneOf(handshakeTimeout, OpDeviceAuthKeyReply, OpMasterStatusBroadcast)
		if err != nil {
			return err
		}
		iterations++
	}
	if replyFrame.Opcode != OpDeviceAuthKeyReply {
		return cpserr.NewProtocolError("auth-key-reply", "did not receive DeviceAuthKeyReply", 0)
	}
	if len(replyFrame.Payload) < 10 {
		return cpserr.NewProtocolError("auth-key-reply", "payload too short for temp address/challenge", 0)
	}

	tempAddress := be16(replyFrame.Payload[0:2])
	challenge := append([]byte(nil), replyFrame.Payload[2:10]...)

	response, err := tea.Encrypt(challenge)
	if err != nil {
		return fmt.Errorf("xnl: encrypting challenge: %w", err)
	}

	connPayload := make([]byte, 0, 12)
	connPayload = append(connPayload, be16Bytes(tempAddress)...)
	connPayload = append(connPayload, deviceType, 0x00)
	connPayload = append(connPayload, response...)

	if err := s.writeFrame(Frame{
		Opcode:  OpDeviceConnectionReq,
		Dest:    s.masterAddress,
		Src:     s.selfAddr,
		TxID:    s.nextTransactionID(),
		Payload: connPayload,
	}); err != nil {
		return err
	}

	connReply, err := s.awaitOpcode(OpDeviceConnectionReply, handshakeTimeout)
	if err != nil {
		return err
	}
	if len(connReply.Payload) < 1 {
		return cpserr.NewProtocolError("connection-reply", "empty payload", 0)
	}
	result := connReply.Payload[0]
	if result != 0x00 {
		return cpserr.NewAuthenticationError(result)
	}

	if len(connReply.Payload) >= 3 {
		s.assignedAddress = be16(connReply.Payload[1:3])
	} else {
		s.assignedAddress = s.selfAddr
	}

	s.connected = true
	log.Infof("xnl: authenticated, assigned address 0x%04X", s.assignedAddress)
	return nil
}

// awaitOpcode reads frames until one with opcode want arrives, or the
// timeout expires.
func (s *Session) awaitOpcode(want Opcode, timeout time.Duration) (Frame, error) {
	return s.awaitOneOf(timeout, want)
}

func (s *Session) awaitOneOf(timeout time.Duration, want ...Opcode) (Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Frame{}, cpserr.NewTimeout(fmt.Sprintf("one of %v", want))
		}
		f, err := s.readFrame(remaining)
		if err != nil {
			return Frame{}, err
		}
		for _, w := range want {
			if f.Opcode == w {
				return f, nil
			}
		}
		log.Debugf("xnl: discarding unexpected opcode %s while waiting for %v", f.Opcode, want)
	}
}

// SendXCMP wraps an XCMP payload in a DataMessage frame, sends it, and
// returns the XCMP payload of the matching DataMessage/DataMessageAck
// reply (spec section 4.3: the two are treated as equivalent reply
// carriers). Unrelated broadcasts are discarded, bounded to
// maxDuplexIterations frames.
func (s *Session) SendXCMP(payload []byte, timeout time.Duration) ([]byte, error) {
	if !s.Authenticated() {
		return nil, cpserr.NewProtocolError("send-xcmp", "session not authenticated", 0)
	}

	txid := s.nextTransactionID()
	if err := s.writeFrame(Frame{
		Opcode:  OpDataMessage,
		Dest:    s.masterAddress,
		Src:     s.assignedAddress,
		TxID:    txid,
		Payload: payload,
	}); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for i := 0; i < maxDuplexIterations; i++ {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, cpserr.NewTimeout("DataMessage reply")
		}
		f, err := s.readFrame(remaining)
		if err != nil {
			return nil, err
		}
		if f.Opcode == OpDataMessage || f.Opcode == OpDataMessageAck {
			return f.Payload, nil
		}
		log.Debugf("xnl: ignoring frame opcode %s while awaiting data reply", f.Opcode)
	}
	return nil, cpserr.NewTimeout("DataMessage reply")
}

// MasterAddress returns the radio's XNL master address, valid once
// Authenticate has run.
func (s *Session) MasterAddress() uint16 { return s.masterAddress }

// AssignedAddress returns this session's assigned address, valid once
// authenticated.
func (s *Session) AssignedAddress() uint16 { return s.assignedAddress }

func be16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func be16Bytes(v uint16) []byte {
	return []byte{byte(v >> 8), byte(v)}
}
