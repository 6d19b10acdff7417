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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []Frame{
		{Opcode: OpStatusIndication},
		{Opcode: OpExtendedReadReply, Address: 0x00010000, Length: 4, Data: []byte{1, 2, 3, 4}},
		{Opcode: OpExtendedWriteRequest, Address: 0xDEADBEEF, Length: 2, Data: []byte{0xAA, 0xBB}},
	}

	for _, f := range cases {
		encoded := f.Marshal()
		decoded, err := Unmarshal(encoded)
		require.NoError(t, err)
		assert.Equal(t, f.Opcode, decoded.Opcode)
		assert.Equal(t, f.Address, decoded.Address)
		assert.Equal(t, f.Length, decoded.Length)
		assert.Equal(t, f.Data, decoded.Data)
	}
}

func TestMutatingBodyFlipsChecksum(t *testing.T) {
	f := Frame{Opcode: OpExtendedReadReply, Address: 0x1000, Length: 2, Data: []byte{0x11, 0x22}}
	encoded := f.Marshal()

	_, err := Unmarshal(encoded)
	require.NoError(t, err)

	mutated := append([]byte(nil), encoded...)
	mutated[5] ^= 0xFF // flip a byte inside the body

	_, err = Unmarshal(mutated)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestUnmarshalShortFrame(t *testing.T) {
	_, err := Unmarshal([]byte{0x00, 0x01})
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestUnmarshalLengthMismatch(t *testing.T) {
	f := Frame{Opcode: OpStatusIndication}
	encoded := f.Marshal()
	encoded = append(encoded, 0x00)

	_, err := Unmarshal(encoded)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestOpcodeClassification(t *testing.T) {
	assert.True(t, OpReadDataReply.IsReadReply())
	assert.True(t, OpExtendedReadReply.IsReadReply())
	assert.False(t, OpGoodWriteReply.IsReadReply())

	assert.True(t, OpGoodWriteReply.IsWriteAck())
	assert.True(t, OpExtendedGoodWriteReply.IsWriteAck())
	assert.True(t, OpBadWriteReply.IsWriteFailure())
	assert.True(t, OpExtendedBadWriteReply.IsWriteFailure())
}
