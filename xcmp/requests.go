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

import "encoding/binary"

// RadioStatusSelector picks the single-byte sub-selector of a
// RadioStatusRequest.
type RadioStatusSelector byte

// Radio status selectors (spec section 3).
const (
	StatusRSSI                 RadioStatusSelector = 0x00
	StatusLowBattery           RadioStatusSelector = 0x01
	StatusModelNumber          RadioStatusSelector = 0x02
	StatusSerialNumber         RadioStatusSelector = 0x03
	StatusRadioID              RadioStatusSelector = 0x04
	StatusRadioName            RadioStatusSelector = 0x05
	StatusPhysicalSerialNumber RadioStatusSelector = 0x06
)

// VersionInfoSelector picks the single-byte sub-selector of a
// VersionInfoRequest.
type VersionInfoSelector byte

// Version info selectors (spec section 3).
const (
	VersionFirmware   VersionInfoSelector = 0x00
	VersionCodeplug   VersionInfoSelector = 0x01
	VersionCPS        VersionInfoSelector = 0x02
	VersionBootloader VersionInfoSelector = 0x03
)

// PSDTAction is the action byte of a PSDTAccess request.
type PSDTAction byte

// PSDT actions (spec section 3); order is this implementation's choice,
// the radio firmware disambiguates by action byte value.
const (
	PSDTGetStartAddress PSDTAction = 0x00
	PSDTGetEndAddress   PSDTAction = 0x01
	PSDTLock            PSDTAction = 0x02
	PSDTUnlock          PSDTAction = 0x03
	PSDTErase           PSDTAction = 0x04
	PSDTCopy            PSDTAction = 0x05
	PSDTImageReorg      PSDTAction = 0x06
)

// ComponentSessionAction is a bit in the component-session action bitset.
type ComponentSessionAction uint16

// Component session actions (spec section 3).
const (
	SessionReset                ComponentSessionAction = 0x0001
	SessionStartSession         ComponentSessionAction = 0x0002
	SessionSnapshot             ComponentSessionAction = 0x0004
	SessionValidateCRC          ComponentSessionAction = 0x0008
	SessionUnpackFiles          ComponentSessionAction = 0x0010
	SessionDeploy               ComponentSessionAction = 0x0020
	SessionDelayTOD             ComponentSessionAction = 0x0040
	SessionSuppressPN           ComponentSessionAction = 0x0080
	SessionStatus               ComponentSessionAction = 0x0100
	SessionReadWrite            ComponentSessionAction = 0x0200
	SessionCreateArchive        ComponentSessionAction = 0x0400
	SessionProgrammingIndicator ComponentSessionAction = 0x0800
)

// RadioUpdateAction is the action byte of a RadioUpdateControl request.
type RadioUpdateAction byte

// Radio update control actions.
const (
	RadioUpdateCodeplug   RadioUpdateAction = 0x01
	RadioValidateCodeplug RadioUpdateAction = 0x02
)

// TransferKind is the kind byte of a TransferData request.
type TransferKind byte

// Transfer data kinds.
const (
	TransferCompressFile TransferKind = 0x01
)

// RadioStatusRequest builds a status-query XCMP packet for selector.
func RadioStatusRequest(selector RadioStatusSelector) Packet {
	return Packet{Opcode: OpRadioStatusRequest, Payload: []byte{byte(selector)}}
}

// VersionInfoRequest builds a version-query XCMP packet for selector.
func VersionInfoRequest(selector VersionInfoSelector) Packet {
	return Packet{Opcode: OpVersionInfoRequest, Payload: []byte{byte(selector)}}
}

// CPSReadRequest builds a raw PSDT byte-range read request.
func CPSReadRequest(addr uint32, length uint16) Packet {
	payload := make([]byte, 6)
	binary.BigEndian.PutUint32(payload[0:4], addr)
	binary.BigEndian.PutUint16(payload[4:6], length)
	return Packet{Opcode: OpCPSReadRequest, Payload: payload}
}

// CloneReadRequest builds a clone-read request for a given
// (zone, channel, data type) triple.
func CloneReadRequest(zone, channel uint16, dataType byte) Packet {
	payload := make([]byte, 10)
	payload[0], payload[1] = 0x80, 0x01
	binary.BigEndian.PutUint16(payload[2:4], zone)
	payload[4], payload[5] = 0x80, 0x02
	binary.BigEndian.PutUint16(payload[6:8], channel)
	payload[8] = 0x00
	payload[9] = dataType
	return Packet{Opcode: OpCloneReadRequest, Payload: payload}
}

// PSDTAccessRequest builds a partition access request. src and tgt are
// ASCII partition IDs, NUL-padded to 4 bytes.
func PSDTAccessRequest(action PSDTAction, src, tgt string) Packet {
	payload := make([]byte, 9)
	payload[0] = byte(action)
	copy(payload[1:5], padID(src))
	copy(payload[5:9], padID(tgt))
	return Packet{Opcode: OpPSDTAccess, Payload: payload}
}

func padID(id string) []byte {
	b := make([]byte, 4)
	copy(b, id)
	return b
}

// ComponentSessionRequest builds a component-session programming request.
// extra is omitted from the payload when nil.
func ComponentSessionRequest(actions ComponentSessionAction, sessionID uint16, extra *uint32) Packet {
	size := 4
	if extra != nil {
		size += 4
	}
	payload := make([]byte, size)
	binary.BigEndian.PutUint16(payload[0:2], uint16(actions))
	binary.BigEndian.PutUint16(payload[2:4], sessionID)
	if extra != nil {
		binary.BigEndian.PutUint32(payload[4:8], *extra)
	}
	return Packet{Opcode: OpComponentSession, Payload: payload}
}

// RadioUpdateControlRequest builds a radio-update-control request.
func RadioUpdateControlRequest(action RadioUpdateAction) Packet {
	return Packet{Opcode: OpRadioUpdateControl, Payload: []byte{byte(action)}}
}

// TransferDataRequest builds a block-transfer request carrying kind and
// the raw block bytes.
func TransferDataRequest(kind TransferKind, data []byte) Packet {
	payload := make([]byte, 1+len(data))
	payload[0] = byte(kind)
	copy(payload[1:], data)
	return Packet{Opcode: OpTransferData, Payload: payload}
}

// ModelNumberRequest builds the MOTOTRBO identify-group model number
// request (opcode 0x0010, single zero sub-selector byte).
func ModelNumberRequest() Packet {
	return Packet{Opcode: OpModelNumber, Payload: []byte{0x00}}
}

// SerialNumberRequest builds the MOTOTRBO identify-group serial number
// request (opcode 0x0011).
func SerialNumberRequest() Packet {
	return Packet{Opcode: OpSerialNumber, Payload: []byte{0x00}}
}

// SecurityKeyRequest builds the MOTOTRBO identify-group security key
// request (opcode 0x0012, no payload).
func SecurityKeyRequest() Packet {
	return Packet{Opcode: OpSecurityKey}
}

// CodeplugIDRequest builds the MOTOTRBO identify-group codeplug ID
// request (opcode 0x001F, two zero sub-selector bytes).
func CodeplugIDRequest() Packet {
	return Packet{Opcode: OpCodeplugID, Payload: []byte{0x00, 0x00}}
}

// CodeplugReadRequest builds a CodeplugRead (0x002E) request for a batch
// of record IDs. Callers are responsible for batching to 5 IDs per spec
// section 4.6.
func CodeplugReadRequest(recordIDs []uint16) Packet {
	payload := make([]byte, 2*len(recordIDs))
	for i, id := range recordIDs {
		binary.BigEndian.PutUint16(payload[2*i:2*i+2], id)
	}
	return Packet{Opcode: OpCodeplugRead, Payload: payload}
}
