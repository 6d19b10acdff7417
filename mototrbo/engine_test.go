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

package mototrbo

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiocps/cpscore/codeplug"
)

// scriptedTransport answers SendXCMP from an ordered queue of replies,
// recording every request it was given.
type scriptedTransport struct {
	replies  [][]byte
	requests [][]byte
	next     int
}

func (s *scriptedTransport) SendXCMP(payload []byte, _ time.Duration) ([]byte, error) {
	s.requests = append(s.requests, payload)
	reply := s.replies[s.next]
	s.next++
	return reply, nil
}

// TestIdentify replays the spec section 8 scenario 3 fixture.
func TestIdentify(t *testing.T) {
	transport := &scriptedTransport{replies: [][]byte{
		{0x00, 0x12, 0x00}, // security key ok, no data
		append([]byte{0x00, 0x10, 0x00}, []byte("H02RDH9VA1AN\x00")...),
		append([]byte{0x00, 0x11, 0x00}, []byte("12345")...),
		append([]byte{0x00, 0x0F, 0x00}, []byte("R02.50")...),
		{0x00, 0x1F, 0x00}, // codeplug ID ok, no data
	}}

	engine := New(transport)
	id, err := engine.Identify()
	require.NoError(t, err)
	assert.Equal(t, "H02RDH9VA1AN", id.Model)
	assert.Equal(t, "12345", id.Serial)
	assert.Equal(t, "R02.50", id.Firmware)
	assert.Equal(t, "xpr", id.RadioFamily)
}

func TestIdentifyToleratesFieldFailure(t *testing.T) {
	transport := &scriptedTransport{replies: [][]byte{
		{0x00, 0x12, 0x01}, // security key failed
		append([]byte{0x00, 0x10, 0x00}, []byte("CP200d\x00")...),
		{0x00, 0x11, 0x01}, // serial failed
		append([]byte{0x00, 0x0F, 0x00}, []byte("R01.00")...),
		{0x00, 0x1F, 0x01}, // codeplug ID failed
	}}

	engine := New(transport)
	id, err := engine.Identify()
	require.NoError(t, err)
	assert.Equal(t, "CP200d", id.Model)
	assert.Empty(t, id.Serial)
	assert.Equal(t, "cp200", id.RadioFamily)
}

// TestReadRecordsBatching replays the spec section 8 scenario 4 fixture:
// 13 record IDs split into batches of 5, 5, 3.
func TestReadRecordsBatching(t *testing.T) {
	channelData := append([]byte{0x02, 0x03}, encodeUTF16LE("Chan01")...)
	recordFrame := buildDataRecord(0x0084, 0, channelData)

	transport := &scriptedTransport{replies: [][]byte{
		append([]byte{0x00, 0x2E}, recordFrame...),
		{0x00, 0x2E}, // second batch, no records
		{0x00, 0x2E}, // third batch, no records
	}}

	ids := make([]uint16, 13)
	for i := range ids {
		ids[i] = uint16(i)
	}

	engine := New(transport)
	frames, err := engine.ReadRecords(ids)
	require.NoError(t, err)
	require.Len(t, transport.requests, 3)
	assert.Len(t, transport.requests[0][2:], 10) // 5 ids * 2 bytes
	assert.Len(t, transport.requests[1][2:], 10)
	assert.Len(t, transport.requests[2][2:], 6)

	require.Len(t, frames, 1)
	name, err := codeplug.ParseChannelRecord084(frames[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "Chan01", name)
}

func buildDataRecord(recordID, offset uint16, data []byte) []byte {
	frame := append([]byte{0x81, 0x00, 0x00, 0x80}, 0, 0, 0, 0, 0, 0, 0, 0)
	binary.BigEndian.PutUint16(frame[4:6], recordID)
	binary.BigEndian.PutUint16(frame[6:8], offset)
	binary.LittleEndian.PutUint16(frame[8:10], uint16(len(data)))
	return append(frame, data...)
}

func encodeUTF16LE(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(r))
		out = append(out, b...)
	}
	return out
}

// TestReadCodeplugProgress runs the PSDT block-read flow end-to-end over a
// 16-byte CP partition and checks the progress fractions it reports.
func TestReadCodeplugProgress(t *testing.T) {
	start := make([]byte, 4)
	binary.BigEndian.PutUint32(start, 0x00010000)
	end := make([]byte, 4)
	binary.BigEndian.PutUint32(end, 0x00010000+16)

	transport := &scriptedTransport{replies: [][]byte{
		{0x01, 0x0F, 0x00},                     // start session
		append([]byte{0x01, 0x0B, 0x00}, start...), // get start address
		append([]byte{0x01, 0x0B, 0x00}, end...),   // get end address
		{0x01, 0x0B, 0x00},                      // unlock
		append([]byte{0x01, 0x04, 0x00}, make([]byte, 16)...), // single cps_read covering 16 bytes
		{0x01, 0x0F, 0x00},                      // create archive
		{0x01, 0x0F, 0x00},                      // reset
	}}

	var fractions []float64
	engine := New(transport)
	data, err := engine.ReadCodeplug(func(f float64) { fractions = append(fractions, f) })
	require.NoError(t, err)
	assert.Len(t, data, 16)
	require.NotEmpty(t, fractions)
	assert.Equal(t, 1.0, fractions[len(fractions)-1])
	for i := 1; i < len(fractions); i++ {
		assert.GreaterOrEqual(t, fractions[i], fractions[i-1])
	}
}

func TestReadCodeplugRejectsInvertedBounds(t *testing.T) {
	transport := &scriptedTransport{replies: [][]byte{
		{0x01, 0x0F, 0x00},
		{0x01, 0x0B, 0x00, 0x00, 0x00, 0x00, 0x00}, // start=0
		{0x01, 0x0B, 0x00, 0x00, 0x00, 0x00, 0x00}, // end=0
	}}

	engine := New(transport)
	_, err := engine.ReadCodeplug(nil)
	require.Error(t, err)
}

// TestWriteCodeplug exercises the full write flow with well-formed
// replies at every step.
func TestWriteCodeplug(t *testing.T) {
	transport := &scriptedTransport{replies: [][]byte{
		{0x01, 0x0F, 0x00}, // start session
		{0x01, 0x0C, 0x00}, // radio update control (codeplug)
		{0x01, 0x0B, 0x00}, // unlock
		{0x04, 0x46, 0x00}, // transfer block 1
		{0x01, 0x0F, 0x00}, // validate crc
		{0x01, 0x0F, 0x00}, // unpack+deploy
		{0x01, 0x0C, 0x00}, // radio update control (validate)
		{0x01, 0x0B, 0x00}, // lock
		{0x01, 0x0F, 0x00}, // reset
	}}

	engine := New(transport)
	var fractions []float64
	err := engine.WriteCodeplug([]byte{1, 2, 3, 4}, func(f float64) { fractions = append(fractions, f) })
	require.NoError(t, err)
	assert.Equal(t, 1.0, fractions[len(fractions)-1])
}

func TestWriteCodeplugAbortsOnTransferFailure(t *testing.T) {
	transport := &scriptedTransport{replies: [][]byte{
		{0x01, 0x0F, 0x00}, // start session
		{0x01, 0x0C, 0x00}, // radio update control
		{0x01, 0x0B, 0x00}, // unlock
		{0x04, 0x46, 0x07}, // transfer block fails
		{0x01, 0x0F, 0x00}, // best-effort reset
	}}

	engine := New(transport)
	err := engine.WriteCodeplug([]byte{1, 2, 3, 4}, nil)
	require.Error(t, err)
}
