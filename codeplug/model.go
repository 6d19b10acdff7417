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

// Package codeplug holds the in-memory, flat-arena codeplug model shared
// by every transfer engine: device identity, general settings, zones and
// their channels, contacts, and scan/RX-group lists that reference other
// elements by index rather than by pointer.
package codeplug

import (
	"fmt"
	"strings"
)

// Identity carries the device identity fields produced by identify.
type Identity struct {
	Model       string
	Serial      string
	Firmware    string
	CodeplugID  string
	RadioFamily string
}

// GeneralSettings holds the radio-wide, non-channel configuration.
type GeneralSettings struct {
	RadioID    uint32
	Alias      string
	IntroLine1 string
	IntroLine2 string

	VOXEnabled bool
	ToneAlert  bool

	TimingTOTSeconds int
	DisplayBacklight string

	SignalingSystem string

	GPSEnabled bool

	LoneWorkerEnabled bool
	LoneWorkerTimeout int

	ManDownEnabled bool
}

// ChannelMode distinguishes analog from digital (DMR) channels, matching
// the 0x0FFB indexed-channel record's mode byte.
type ChannelMode byte

// Channel modes (spec section 4.6, offset 0x0E).
const (
	ModeAnalog  ChannelMode = 0x00
	ModeDigital ChannelMode = 0x01
)

// Channel is one radio channel, populated from either the 0x0FFB
// fixed-layout record or the 0x0084 variable record.
type Channel struct {
	Name string
	Mode ChannelMode

	RXFrequencyHz uint32
	TXFrequencyHz uint32

	RXToneDeciHz uint16
	TXToneDeciHz uint16

	ColourCode byte

	ContactID uint32

	PowerLevel byte
	TOTSeconds uint16

	RXGroupIndex  int
	ScanListIndex int
}

// Zone is a named, ordered collection of channels.
type Zone struct {
	Name     string
	Channels []Channel
}

// ContactKind distinguishes digital contact addressing modes.
type ContactKind byte

// Contact kinds.
const (
	ContactGroup    ContactKind = 0x00
	ContactPrivate  ContactKind = 0x01
	ContactAllCall  ContactKind = 0x02
)

// Contact is one digital contact entry.
type Contact struct {
	Name string
	ID   uint32
	Kind ContactKind
}

// ScanMember references a channel by position within Codeplug.Zones,
// never by pointer, per the flat-arena design.
type ScanMember struct {
	ZoneIndex    int
	ChannelIndex int
}

// ScanList is a named, ordered collection of channel references.
type ScanList struct {
	Name    string
	Members []ScanMember
}

// RXGroupList is a named, ordered collection of contact references.
type RXGroupList struct {
	Name           string
	ContactIndices []int
}

// Codeplug is the full parsed radio configuration: a flat arena of
// zones/channels/contacts/lists connected by index edges.
type Codeplug struct {
	Identity Identity
	General  GeneralSettings

	Zones        []Zone
	Contacts     []Contact
	ScanLists    []ScanList
	RXGroupLists []RXGroupList
}

// IndexError reports an out-of-range or dangling index edge found while
// validating a Codeplug.
type IndexError struct {
	Context string
	Index   int
	Bound   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("codeplug: %s index %d out of range [0,%d)", e.Context, e.Index, e.Bound)
}

// Validate checks every index edge in cp (scan-list channel references,
// RX-group contact references) and returns the first violation found.
func (cp *Codeplug) Validate() error {
	for zi, z := range cp.Zones {
		for ci := range z.Channels {
			if z.Channels[ci].RXGroupIndex >= 0 && z.Channels[ci].RXGroupIndex >= len(cp.RXGroupLists) {
				return &IndexError{Context: fmt.Sprintf("zone[%d].channel[%d].rx_group", zi, ci), Index: z.Channels[ci].RXGroupIndex, Bound: len(cp.RXGroupLists)}
			}
		}
	}

	for si, sl := range cp.ScanLists {
		for mi, m := range sl.Members {
			if m.ZoneIndex < 0 || m.ZoneIndex >= len(cp.Zones) {
				return &IndexError{Context: fmt.Sprintf("scan_list[%d].member[%d].zone", si, mi), Index: m.ZoneIndex, Bound: len(cp.Zones)}
			}
			zone := cp.Zones[m.ZoneIndex]
			if m.ChannelIndex < 0 || m.ChannelIndex >= len(zone.Channels) {
				return &IndexError{Context: fmt.Sprintf("scan_list[%d].member[%d].channel", si, mi), Index: m.ChannelIndex, Bound: len(zone.Channels)}
			}
		}
	}

	for gi, g := range cp.RXGroupLists {
		for ci, idx := range g.ContactIndices {
			if idx < 0 || idx >= len(cp.Contacts) {
				return &IndexError{Context: fmt.Sprintf("rx_group[%d].contact[%d]", gi, ci), Index: idx, Bound: len(cp.Contacts)}
			}
		}
	}

	return nil
}

// RadioFamily derives the dispatcher's family tag from a model string
// prefix, per spec section 4.9.
func RadioFamily(model string) string {
	switch {
	case hasAnyPrefix(model, "H02", "H98", "H99", "M27", "AAH") && containsSub(model, "RD"):
		return "xpr"
	case hasAnyPrefix(model, "APX", "H78", "H45", "M25"):
		return "apx"
	case hasAnyPrefix(model, "MTP", "MTM", "H55", "H56"):
		return "mtp"
	case hasAnyPrefix(model, "LEX", "H69"):
		return "lex"
	case hasAnyPrefix(model, "CLP"):
		return "clp"
	case hasAnyPrefix(model, "CLS"):
		return "cls"
	case hasAnyPrefix(model, "DLR"):
		return "dlr"
	case hasAnyPrefix(model, "DTR"):
		return "dtr"
	case hasAnyPrefix(model, "CP"):
		return "cp200"
	default:
		return ""
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsSub(s, sub string) bool {
	return strings.Contains(s, sub)
}
