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

package codeplug

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchRecordIDs(t *testing.T) {
	ids := make([]uint16, 13)
	for i := range ids {
		ids[i] = uint16(i)
	}
	batches := BatchRecordIDs(ids)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 5)
	assert.Len(t, batches[1], 5)
	assert.Len(t, batches[2], 3)
}

func buildDataRecord(recordID, offset uint16, data []byte) []byte {
	frame := append([]byte{0x81, 0x00, 0x00, 0x80}, 0, 0, 0, 0, 0, 0, 0, 0)
	binary.BigEndian.PutUint16(frame[4:6], recordID)
	binary.BigEndian.PutUint16(frame[6:8], offset)
	binary.LittleEndian.PutUint16(frame[8:10], uint16(len(data)))
	return append(frame, data...)
}

func TestParseRecordStreamStrictTag(t *testing.T) {
	data := []byte{0xAA, 0xBB}
	stream := buildDataRecord(RecordChannel, 0, data)

	frames, err := ParseRecordStream(stream)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, uint16(RecordChannel), frames[0].RecordID)
	assert.Equal(t, data, frames[0].Data)
}

func TestParseRecordStreamMetadataTag(t *testing.T) {
	frame := make([]byte, 14)
	copy(frame, []byte{0x81, 0x04, 0x00, 0x80})
	binary.BigEndian.PutUint16(frame[4:6], RecordZoneChanMapA)

	frames, err := ParseRecordStream(frame)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Metadata)
	assert.Equal(t, uint16(RecordZoneChanMapA), frames[0].RecordID)
}

func TestParseRecordStreamMultipleRecords(t *testing.T) {
	stream := append(buildDataRecord(RecordChannel, 0, []byte{1, 2, 3}), buildDataRecord(RecordZoneList, 1, []byte{4, 5})...)

	frames, err := ParseRecordStream(stream)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, uint16(RecordChannel), frames[0].RecordID)
	assert.Equal(t, uint16(RecordZoneList), frames[1].RecordID)
}

func TestParseRecordStreamTruncated(t *testing.T) {
	_, err := ParseRecordStream([]byte{0x81, 0x00, 0x00, 0x80, 0x00})
	assert.ErrorIs(t, err, ErrShortRecordStream)
}

// encodeUTF16LE is the inverse of decodeUTF16LE, used only by tests to
// build fixture record bytes.
func encodeUTF16LE(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(r))
		out = append(out, b...)
	}
	return out
}

func TestParseChannelRecord084(t *testing.T) {
	data := append([]byte{0x00, 0x00, 0x02, 0x03}, encodeUTF16LE("Chan01")...)

	name, err := ParseChannelRecord084(data)
	require.NoError(t, err)
	assert.Equal(t, "Chan01", name)
}

func TestParseChannelRecord084MissingMarker(t *testing.T) {
	_, err := ParseChannelRecord084([]byte{0x00, 0x01, 0x02})
	assert.Error(t, err)
}

func TestParseChannelRecord0FFB(t *testing.T) {
	data := make([]byte, Channel0FFBSize)
	data[0x0E] = byte(ModeDigital)
	data[0x18] = 0x07
	binary.LittleEndian.PutUint32(data[0x24:0x28], 1234567) // x5 Hz units
	binary.LittleEndian.PutUint32(data[0x28:0x2C], 2345678)
	binary.LittleEndian.PutUint16(data[0x30:0x32], 1000)
	binary.LittleEndian.PutUint16(data[0x32:0x34], 2000)
	copy(data[0x3C:0x5C], encodeUTF16LE("Alpha"))
	binary.LittleEndian.PutUint32(data[0x74:0x78], 99)
	binary.LittleEndian.PutUint16(data[0x78:0x7A], 180)
	data[0x7A] = 2
	data[0x7B] = 3

	ch, err := ParseChannelRecord0FFB(data)
	require.NoError(t, err)

	want := Channel{
		Mode:          ModeDigital,
		ColourCode:    0x07,
		RXFrequencyHz: 1234567 * 5,
		TXFrequencyHz: 2345678 * 5,
		RXToneDeciHz:  1000,
		TXToneDeciHz:  2000,
		Name:          "Alpha",
		ContactID:     99,
		TOTSeconds:    180,
		RXGroupIndex:  2,
		ScanListIndex: 3,
	}
	if diff := cmp.Diff(want, ch); diff != "" {
		t.Errorf("ParseChannelRecord0FFB() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseChannelRecord0FFBWrongSize(t *testing.T) {
	_, err := ParseChannelRecord0FFB(make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidChannelRecord)
}

func TestSplitChannel0FFBRecords(t *testing.T) {
	one := make([]byte, Channel0FFBSize)
	one[0x0E] = byte(ModeAnalog)
	two := make([]byte, Channel0FFBSize)
	two[0x0E] = byte(ModeDigital)

	channels, err := SplitChannel0FFBRecords(append(one, two...))
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, ModeAnalog, channels[0].Mode)
	assert.Equal(t, ModeDigital, channels[1].Mode)
}
