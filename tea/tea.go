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

// Package tea implements the block cipher used by the XNL auth handshake
// to turn the radio's challenge into a response: a Tiny Encryption
// Algorithm variant with a non-standard delta and a fixed 128-bit key.
package tea

import (
	"encoding/binary"
	"fmt"
)

const rounds = 32

// delta is not the textbook TEA delta (derived from the golden ratio);
// this radio family uses a fixed constant instead.
const delta uint32 = 0x790AB771

// keyBytes are the 16 fixed bytes the four key words are read from, each
// as a little-endian uint32.
var keyBytes = [16]byte{
	0x1D, 0x30, 0x96, 0x5A,
	0x55, 0xAA, 0xF2, 0x0C,
	0xC6, 0x6C, 0x93, 0xBF,
	0x5B, 0xCD, 0x5E, 0xBD,
}

var key = [4]uint32{
	binary.LittleEndian.Uint32(keyBytes[0:4]),
	binary.LittleEndian.Uint32(keyBytes[4:8]),
	binary.LittleEndian.Uint32(keyBytes[8:12]),
	binary.LittleEndian.Uint32(keyBytes[12:16]),
}

// BlockSize is the fixed TEA block size in bytes.
const BlockSize = 8

// ErrInvalidBlockSize is returned when Encrypt or Decrypt is given input
// that isn't exactly BlockSize bytes.
var ErrInvalidBlockSize = fmt.Errorf("tea: input must be exactly %d bytes", BlockSize)

// Encrypt encrypts one 8-byte block and returns the 8-byte ciphertext.
func Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) != BlockSize {
		return nil, ErrInvalidBlockSize
	}

	v0 := binary.BigEndian.Uint32(plaintext[0:4])
	v1 := binary.BigEndian.Uint32(plaintext[4:8])

	var sum uint32
	for i := 0; i < rounds; i++ {
		sum += delta
		v0 += ((v1 << 4) + key[0]) ^ (v1 + sum) ^ ((v1 >> 5) + key[1])
		v1 += ((v0 << 4) + key[2]) ^ (v0 + sum) ^ ((v0 >> 5) + key[3])
	}

	out := make([]byte, BlockSize)
	binary.BigEndian.PutUint32(out[0:4], v0)
	binary.BigEndian.PutUint32(out[4:8], v1)
	return out, nil
}

// Decrypt decrypts one 8-byte ciphertext block and returns the 8-byte
// plaintext. decrypt(encrypt(x)) == x for every 8-byte x.
func Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != BlockSize {
		return nil, ErrInvalidBlockSize
	}

	v0 := binary.BigEndian.Uint32(ciphertext[0:4])
	v1 := binary.BigEndian.Uint32(ciphertext[4:8])

	sum := delta * rounds
	for i := 0; i < rounds; i++ {
		v1 -= ((v0 << 4) + key[2]) ^ (v0 + sum) ^ ((v0 >> 5) + key[3])
		v0 -= ((v1 << 4) + key[0]) ^ (v1 + sum) ^ ((v1 >> 5) + key[1])
		sum -= delta
	}

	out := make([]byte, BlockSize)
	binary.BigEndian.PutUint32(out[0:4], v0)
	binary.BigEndian.PutUint32(out[4:8], v1)
	return out, nil
}

// EncryptRadioKey applies Encrypt to four consecutive 8-byte blocks of a
// 32-byte radio key, ECB-style.
func EncryptRadioKey(plaintext []byte) ([]byte, error) {
	if len(plaintext) != 32 {
		return nil, fmt.Errorf("tea: radio key must be exactly 32 bytes, got %d", len(plaintext))
	}

	out := make([]byte, 0, 32)
	for i := 0; i < 32; i += BlockSize {
		block, err := Encrypt(plaintext[i : i+BlockSize])
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}
	return out, nil
}
