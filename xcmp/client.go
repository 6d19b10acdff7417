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

package xcmp

import (
	"encoding/binary"
	"strings"
	"time"
	"unicode/utf16"

	log "github.com/sirupsen/logrus"

	"github.com/radiocps/cpscore/cpserr"
)

// Transport is the duplex send/receive primitive the XCMP client needs
// from the XNL session layer. *xnl.Session satisfies this.
type Transport interface {
	SendXCMP(payload []byte, timeout time.Duration) ([]byte, error)
}

// Client issues typed XCMP requests over a Transport and parses replies
// into structured values.
type Client struct {
	transport Transport
	timeout   time.Duration
}

// NewClient builds a Client over transport using timeout as the default
// per-request deadline.
func NewClient(transport Transport, timeout time.Duration) *Client {
	return &Client{transport: transport, timeout: timeout}
}

// send transmits req and decodes the reply, rejecting broadcast-class
// replies (they must never satisfy a pending single-flight request).
func (c *Client) send(req Packet) (Packet, error) {
	return c.sendWithTimeout(req, c.timeout)
}

func (c *Client) sendWithTimeout(req Packet, timeout time.Duration) (Packet, error) {
	raw, err := c.transport.SendXCMP(req.Encode(), timeout)
	if err != nil {
		return Packet{}, err
	}
	reply, err := Decode(raw)
	if err != nil {
		return Packet{}, err
	}
	if reply.Opcode.IsBroadcast() {
		return Packet{}, cpserr.NewProtocolError("xcmp-request", "broadcast-class reply cannot satisfy request", 0)
	}
	log.Debugf("xcmp: %s -> %s (%d bytes)", req.Opcode, reply.Opcode, len(reply.Payload))
	return reply, nil
}

// Field is one identify-group result: an error byte from the radio and,
// when the error byte is zero, the decoded value.
type Field struct {
	OK        bool
	ErrorCode byte
	Value     string
	Raw       []byte
}

func (c *Client) identityField(req Packet) (Field, error) {
	reply, err := c.send(req)
	if err != nil {
		return Field{}, err
	}
	if len(reply.Payload) < 1 {
		return Field{}, cpserr.NewProtocolError("identity-field", "empty payload", 0)
	}

	f := Field{ErrorCode: reply.Payload[0], OK: reply.Payload[0] == 0x00}
	if f.OK {
		rest := reply.Payload[1:]
		f.Raw = rest
		f.Value = trimIdentityString(rest)
	}
	return f, nil
}

// trimIdentityString removes C0 control bytes and trailing NULs from a
// UTF-8 identity/version string, per spec section 4.5.
func trimIdentityString(b []byte) string {
	s := strings.TrimRight(string(b), "\x00")
	var out strings.Builder
	for _, r := range s {
		if r < 0x20 {
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

// Model issues the ModelNumber identify-group request.
func (c *Client) Model() (Field, error) { return c.identityField(ModelNumberRequest()) }

// Serial issues the SerialNumber identify-group request.
func (c *Client) Serial() (Field, error) { return c.identityField(SerialNumberRequest()) }

// Firmware issues the VersionInfo(Firmware) identify-group request.
func (c *Client) Firmware() (Field, error) { return c.identityField(VersionInfoRequest(VersionFirmware)) }

// CodeplugID issues the CodeplugID identify-group request.
func (c *Client) CodeplugID() (Field, error) { return c.identityField(CodeplugIDRequest()) }

// SecurityKey issues the SecurityKey identify-group request.
func (c *Client) SecurityKey() (Field, error) { return c.identityField(SecurityKeyRequest()) }

// RadioID issues a RadioStatusRequest(RadioID) and parses the reply's
// 24-bit big-endian radio ID.
func (c *Client) RadioID() (uint32, error) {
	reply, err := c.send(RadioStatusRequest(StatusRadioID))
	if err != nil {
		return 0, err
	}
	if len(reply.Payload) < 4 {
		return 0, cpserr.NewProtocolError("radio-id", "payload too short", 0)
	}
	if reply.Payload[0] != 0x00 {
		return 0, cpserr.NewProtocolError("radio-id", "error byte set", reply.Payload[0])
	}
	b := reply.Payload[1:4]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

// CloneReadReply is the parsed result of a CloneReadRequest.
type CloneReadReply struct {
	Zone     uint16
	Channel  uint16
	DataType byte
	Data     []byte
}

// CloneRead issues a CloneReadRequest for (zone, channel, dataType) and
// parses the reply shaped [80 01][zone:2][80 02][channel:2][data_type:2][len:2][data...].
func (c *Client) CloneRead(zone, channel uint16, dataType byte) (CloneReadReply, error) {
	reply, err := c.send(CloneReadRequest(zone, channel, dataType))
	if err != nil {
		return CloneReadReply{}, err
	}
	p := reply.Payload
	if len(p) < 12 {
		return CloneReadReply{}, cpserr.NewProtocolError("clone-read", "payload too short", 0)
	}
	if p[0] != 0x80 || p[1] != 0x01 || p[4] != 0x80 || p[5] != 0x02 {
		return CloneReadReply{}, cpserr.NewProtocolError("clone-read", "unexpected tag markers", 0)
	}
	length := binary.BigEndian.Uint16(p[10:12])
	if len(p) < 12+int(length) {
		return CloneReadReply{}, cpserr.NewProtocolError("clone-read", "data shorter than declared length", 0)
	}
	return CloneReadReply{
		Zone:     binary.BigEndian.Uint16(p[2:4]),
		Channel:  binary.BigEndian.Uint16(p[6:8]),
		DataType: p[9],
		Data:     append([]byte(nil), p[12:12+length]...),
	}, nil
}

// DecodeUTF16BEName decodes a channel-name clone-read field (UTF-16-BE,
// NUL padded).
func DecodeUTF16BEName(data []byte) string {
	units := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		units = append(units, binary.BigEndian.Uint16(data[i:i+2]))
	}
	return strings.TrimRight(string(utf16.Decode(units)), "\x00")
}

// PSDTAddresses holds the start/end addresses of a partition as reported
// by PSDTAccess(GetStartAddress)/(GetEndAddress).
type PSDTAddresses struct {
	Start uint32
	End   uint32
}

// Size returns end-start, the partition's byte size.
func (a PSDTAddresses) Size() uint32 { return a.End - a.Start }

// maxPartitionSize bounds the CP partition size per spec section 4.5
// invariant: end - start <= 50 MB.
const maxPartitionSize = 50 * 1024 * 1024

// PSDTPartitionBounds queries the start and end address of partition id
// (typically "CP") and validates end > start and the 50 MB size bound.
func (c *Client) PSDTPartitionBounds(id string) (PSDTAddresses, error) {
	start, err := c.psdtAddress(PSDTGetStartAddress, id)
	if err != nil {
		return PSDTAddresses{}, err
	}
	end, err := c.psdtAddress(PSDTGetEndAddress, id)
	if err != nil {
		return PSDTAddresses{}, err
	}
	if end <= start {
		return PSDTAddresses{}, cpserr.NewProtocolError("psdt-bounds", "end address must exceed start address", 0)
	}
	if end-start > maxPartitionSize {
		return PSDTAddresses{}, cpserr.NewProtocolError("psdt-bounds", "partition exceeds 50MB bound", 0)
	}
	return PSDTAddresses{Start: start, End: end}, nil
}

// PSDTUnlock issues a PSDTAccess(Unlock) request against partition id.
func (c *Client) PSDTUnlock(id string) error { return c.psdtControl(PSDTUnlock, id) }

// PSDTLock issues a PSDTAccess(Lock) request against partition id.
func (c *Client) PSDTLock(id string) error { return c.psdtControl(PSDTLock, id) }

func (c *Client) psdtControl(action PSDTAction, id string) error {
	reply, err := c.send(PSDTAccessRequest(action, id, id))
	if err != nil {
		return err
	}
	if len(reply.Payload) < 1 {
		return cpserr.NewProtocolError("psdt-control", "empty payload", 0)
	}
	if reply.Payload[0] != 0x00 {
		return cpserr.NewProtocolError("psdt-control", "error byte set", reply.Payload[0])
	}
	return nil
}

func (c *Client) psdtAddress(action PSDTAction, id string) (uint32, error) {
	reply, err := c.send(PSDTAccessRequest(action, id, id))
	if err != nil {
		return 0, err
	}
	if len(reply.Payload) < 5 {
		return 0, cpserr.NewProtocolError("psdt-address", "payload too short", 0)
	}
	if reply.Payload[0] != 0x00 {
		return 0, cpserr.NewProtocolError("psdt-address", "error byte set", reply.Payload[0])
	}
	return binary.BigEndian.Uint32(reply.Payload[1:5]), nil
}

// ComponentSession issues a component-session programming request and
// checks the leading error byte.
func (c *Client) ComponentSession(actions ComponentSessionAction, sessionID uint16, extra *uint32) error {
	return c.ComponentSessionTimeout(actions, sessionID, extra, c.timeout)
}

// ComponentSessionTimeout is ComponentSession with a caller-supplied
// timeout, used for the long-running CRC validate / unpack+deploy steps
// of a PSDT codeplug write.
func (c *Client) ComponentSessionTimeout(actions ComponentSessionAction, sessionID uint16, extra *uint32, timeout time.Duration) error {
	reply, err := c.sendWithTimeout(ComponentSessionRequest(actions, sessionID, extra), timeout)
	if err != nil {
		return err
	}
	if len(reply.Payload) < 1 {
		return cpserr.NewProtocolError("component-session", "empty payload", 0)
	}
	if reply.Payload[0] != 0x00 {
		return cpserr.NewProtocolError("component-session", "error byte set", reply.Payload[0])
	}
	return nil
}

// RadioUpdateControl issues a radio-update-control request and checks the
// leading error byte.
func (c *Client) RadioUpdateControl(action RadioUpdateAction) error {
	reply, err := c.send(RadioUpdateControlRequest(action))
	if err != nil {
		return err
	}
	if len(reply.Payload) < 1 {
		return cpserr.NewProtocolError("radio-update-control", "empty payload", 0)
	}
	if reply.Payload[0] != 0x00 {
		return cpserr.NewProtocolError("radio-update-control", "error byte set", reply.Payload[0])
	}
	return nil
}

// CPSRead issues a raw PSDT byte-range read and returns the returned
// bytes. Reply shaped [err:1][bytes...].
func (c *Client) CPSRead(addr uint32, length uint16) ([]byte, error) {
	reply, err := c.send(CPSReadRequest(addr, length))
	if err != nil {
		return nil, err
	}
	if len(reply.Payload) < 1 {
		return nil, cpserr.NewProtocolError("cps-read", "empty payload", 0)
	}
	if reply.Payload[0] != 0x00 {
		return nil, cpserr.NewProtocolError("cps-read", "error byte set", reply.Payload[0])
	}
	return reply.Payload[1:], nil
}

// TransferData issues a block-transfer request and checks the leading
// error byte of its reply.
func (c *Client) TransferData(kind TransferKind, data []byte) error {
	reply, err := c.send(TransferDataRequest(kind, data))
	if err != nil {
		return err
	}
	if len(reply.Payload) < 1 {
		return cpserr.NewProtocolError("transfer-data", "empty payload", 0)
	}
	if reply.Payload[0] != 0x00 {
		return cpserr.NewProtocolError("transfer-data", "error byte set", reply.Payload[0])
	}
	return nil
}

// CodeplugRead issues a CodeplugRead batch request for up to 5 record
// IDs and returns the raw reply payload for the caller (mototrbo) to
// split into individual record frames.
func (c *Client) CodeplugRead(recordIDs []uint16) ([]byte, error) {
	reply, err := c.send(CodeplugReadRequest(recordIDs))
	if err != nil {
		return nil, err
	}
	return reply.Payload, nil
}
