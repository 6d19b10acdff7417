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
	"fmt"
	"unicode/utf16"

	log "github.com/sirupsen/logrus"
)

// Record IDs used by the indexed-record read flow (spec section 4.6).
const (
	RecordChannel      = 0x0084
	RecordZoneList     = 0x0074
	RecordZoneChanMapA = 0x0093
	RecordZoneChanMapB = 0x009D
)

// BatchRecordIDs splits ids into groups of exactly 5, the last group
// possibly shorter, per the CodeplugRead batching rule.
func BatchRecordIDs(ids []uint16) [][]uint16 {
	const batchSize = 5
	var batches [][]uint16
	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[i:end])
	}
	return batches
}

// dataTag is the strict 4-byte header marking a DATA record.
var dataTag = [4]byte{0x81, 0x00, 0x00, 0x80}

// metadataTag marks a METADATA-only record (no payload, fixed 14 bytes).
var metadataTag = [4]byte{0x81, 0x04, 0x00, 0x80}

// relaxedDataTag is the two-byte fallback recognizer; spec section 9
// treats it as a compatibility shim, not the authoritative format.
var relaxedDataTag = [2]byte{0x81, 0x00}

// RecordFrame is one decoded record from a CodeplugRead reply.
type RecordFrame struct {
	RecordID uint16
	Offset   uint16
	Data     []byte
	Metadata bool
}

// ErrShortRecordStream is returned when the reply ends mid-record.
var ErrShortRecordStream = fmt.Errorf("codeplug: record stream truncated")

// ParseRecordStream splits a CodeplugRead reply payload into individual
// record frames, recognizing the strict DATA tag first, the METADATA tag,
// and falling back to the relaxed 2-byte tag with a log warning.
func ParseRecordStream(b []byte) ([]RecordFrame, error) {
	var frames []RecordFrame
	for len(b) > 0 {
		switch {
		case len(b) >= 4 && [4]byte(b[:4]) == dataTag:
			if len(b) < 12 {
				return frames, ErrShortRecordStream
			}
			recordID := binary.BigEndian.Uint16(b[4:6])
			offset := binary.BigEndian.Uint16(b[6:8])
			size := binary.LittleEndian.Uint16(b[8:10])
			// 2 bytes padding at b[10:12], then size bytes of record data.
			if len(b) < 12+int(size) {
				return frames, ErrShortRecordStream
			}
			frames = append(frames, RecordFrame{
				RecordID: recordID,
				Offset:   offset,
				Data:     append([]byte(nil), b[12:12+int(size)]...),
			})
			b = b[12+int(size):]

		case len(b) >= 4 && [4]byte(b[:4]) == metadataTag:
			if len(b) < 14 {
				return frames, ErrShortRecordStream
			}
			recordID := binary.BigEndian.Uint16(b[4:6])
			frames = append(frames, RecordFrame{RecordID: recordID, Metadata: true})
			b = b[14:]

		case len(b) >= 2 && [2]byte(b[:2]) == relaxedDataTag:
			log.Warnf("codeplug: relaxed record tag fired, treating as compatibility fallback")
			if len(b) < 10 {
				return frames, ErrShortRecordStream
			}
			recordID := binary.BigEndian.Uint16(b[2:4])
			offset := binary.BigEndian.Uint16(b[4:6])
			size := binary.LittleEndian.Uint16(b[6:8])
			if len(b) < 10+int(size) {
				return frames, ErrShortRecordStream
			}
			frames = append(frames, RecordFrame{
				RecordID: recordID,
				Offset:   offset,
				Data:     append([]byte(nil), b[10:10+int(size)]...),
			})
			b = b[10+int(size):]

		default:
			return frames, ErrShortRecordStream
		}
	}
	return frames, nil
}

// channelNameMarker precedes the UTF-16-LE channel name within an 0x0084
// record per spec section 4.6.
var channelNameMarker = [2]byte{0x02, 0x03}

// ParseChannelRecord084 extracts a channel name from an 0x0084 record:
// a UTF-16-LE string immediately following the marker 02 03. Frequency
// fields are not recovered from this record; prefer ParseChannelRecord0FFB
// where available (spec section 9, open question).
func ParseChannelRecord084(data []byte) (string, error) {
	for i := 0; i+1 < len(data); i++ {
		if data[i] == channelNameMarker[0] && data[i+1] == channelNameMarker[1] {
			return decodeUTF16LE(data[i+2:]), nil
		}
	}
	return "", fmt.Errorf("codeplug: channel name marker not found in 0x0084 record")
}

// ParseZoneListRecord074 extracts a zone name from an 0x0074 record: the
// first printable-aligned run of UTF-16-LE code units, i.e. decoding
// starts at the first even offset holding a printable ASCII code unit and
// stops at the next NUL unit.
func ParseZoneListRecord074(data []byte) string {
	for i := 0; i+1 < len(data); i += 2 {
		if data[i+1] == 0x00 && data[i] >= 0x20 && data[i] < 0x7F {
			return decodeUTF16LE(data[i:])
		}
	}
	return ""
}

func decodeUTF16LE(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i : i+2])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

// Channel0FFBSize is the fixed record size of the authoritative indexed
// channel record.
const Channel0FFBSize = 324

// ErrInvalidChannelRecord is returned when a 0x0FFB record is the wrong size.
var ErrInvalidChannelRecord = fmt.Errorf("codeplug: 0x0FFB channel record must be %d bytes", Channel0FFBSize)

// ParseChannelRecord0FFB decodes one fixed 324-byte channel record per the
// authoritative field layout in spec section 4.6.
func ParseChannelRecord0FFB(data []byte) (Channel, error) {
	if len(data) != Channel0FFBSize {
		return Channel{}, ErrInvalidChannelRecord
	}

	ch := Channel{
		Mode:          ChannelMode(data[0x0E]),
		ColourCode:    data[0x18],
		RXFrequencyHz: binary.LittleEndian.Uint32(data[0x24:0x28]) * 5,
		TXFrequencyHz: binary.LittleEndian.Uint32(data[0x28:0x2C]) * 5,
		RXToneDeciHz:  binary.LittleEndian.Uint16(data[0x30:0x32]),
		TXToneDeciHz:  binary.LittleEndian.Uint16(data[0x32:0x34]),
		Name:          decodeUTF16LE(data[0x3C:0x5C]),
		ContactID:     binary.LittleEndian.Uint32(data[0x74:0x78]),
		PowerLevel:    byte(binary.LittleEndian.Uint16(data[0x76:0x78])),
		TOTSeconds:    binary.LittleEndian.Uint16(data[0x78:0x7A]),
		RXGroupIndex:  int(data[0x7A]),
		ScanListIndex: int(data[0x7B]),
	}
	return ch, nil
}

// SplitChannel0FFBRecords splits a concatenated stream of 0x0FFB channel
// records into individual 324-byte chunks and parses each.
func SplitChannel0FFBRecords(data []byte) ([]Channel, error) {
	if len(data)%Channel0FFBSize != 0 {
		return nil, ErrInvalidChannelRecord
	}
	channels := make([]Channel, 0, len(data)/Channel0FFBSize)
	for off := 0; off < len(data); off += Channel0FFBSize {
		ch, err := ParseChannelRecord0FFB(data[off : off+Channel0FFBSize])
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}
