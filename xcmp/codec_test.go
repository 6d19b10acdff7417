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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	cases := []Packet{
		{Opcode: OpRadioStatusRequest, Payload: []byte{0x02}},
		{Opcode: Opcode(0xBEEF), Payload: []byte{1, 2, 3}}, // unknown opcode preserved
		{Opcode: OpCodeplugRead, Payload: nil},
	}

	for _, p := range cases {
		decoded, err := Decode(p.Encode())
		require.NoError(t, err)
		assert.Equal(t, p.Opcode, decoded.Opcode)
		assert.Equal(t, p.Payload, decoded.Payload)
	}
}

func TestDecodeShortPacket(t *testing.T) {
	_, err := Decode([]byte{0x01})
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestReplyAndBroadcastClassification(t *testing.T) {
	req := OpRadioStatusRequest
	assert.False(t, req.IsReply())
	assert.False(t, req.IsBroadcast())

	reply := req.Reply()
	assert.True(t, reply.IsReply())
	assert.Equal(t, Opcode(0x800E), reply)

	broadcast := Opcode(0xB001)
	assert.True(t, broadcast.IsBroadcast())
	assert.False(t, broadcast.IsReply())
}

func TestRadioStatusRequestLayout(t *testing.T) {
	p := RadioStatusRequest(StatusModelNumber)
	assert.Equal(t, []byte{0x00, 0x0E, 0x02}, p.Encode())
}

func TestVersionInfoRequestLayout(t *testing.T) {
	p := VersionInfoRequest(VersionFirmware)
	assert.Equal(t, []byte{0x00, 0x0F, 0x00}, p.Encode())
}

func TestCPSReadRequestLayout(t *testing.T) {
	p := CPSReadRequest(0x00010000, 1024)
	assert.Equal(t, []byte{0x01, 0x04, 0x00, 0x01, 0x00, 0x00, 0x04, 0x00}, p.Encode())
}

func TestCloneReadRequestLayout(t *testing.T) {
	p := CloneReadRequest(1, 2, 0x04)
	expected := []byte{0x01, 0x0A, 0x80, 0x01, 0x00, 0x01, 0x80, 0x02, 0x00, 0x02, 0x00, 0x04}
	assert.Equal(t, expected, p.Encode())
}

func TestPSDTAccessRequestLayout(t *testing.T) {
	p := PSDTAccessRequest(PSDTGetStartAddress, "CP", "ISH")
	expected := []byte{0x01, 0x0B, 0x00, 'C', 'P', 0x00, 0x00, 'I', 'S', 'H', 0x00}
	assert.Equal(t, expected, p.Encode())
}

func TestComponentSessionRequestLayout(t *testing.T) {
	p := ComponentSessionRequest(SessionStartSession|SessionReadWrite, 0x0001, nil)
	expected := []byte{0x01, 0x0F, 0x02, 0x02, 0x00, 0x01}
	assert.Equal(t, expected, p.Encode())

	extra := uint32(0xDEADBEEF)
	withExtra := ComponentSessionRequest(SessionReset, 7, &extra)
	assert.Len(t, withExtra.Payload, 8)
}

func TestTransferDataRequestLayout(t *testing.T) {
	p := TransferDataRequest(TransferCompressFile, []byte{0xAA, 0xBB})
	expected := []byte{0x04, 0x46, 0x01, 0xAA, 0xBB}
	assert.Equal(t, expected, p.Encode())
}

func TestCodeplugReadRequestBatching(t *testing.T) {
	p := CodeplugReadRequest([]uint16{0x0084, 0x0074})
	expected := []byte{0x00, 0x2E, 0x00, 0x84, 0x00, 0x74}
	assert.Equal(t, expected, p.Encode())
}
