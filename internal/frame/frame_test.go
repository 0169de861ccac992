/*
 * This file is part of gitonair, an acoustic modem for transferring
 * Git repositories over sound.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		ftype   Type
		seq     uint8
		payload []byte
	}{
		{"zero length ACK", TypeAck, 0, nil},
		{"zero length SYN", TypeSyn, 0, nil},
		{"small data", TypeData, 7, []byte("hello")},
		{"maximum length data", TypeData, 255, bytes.Repeat([]byte{0x42}, MaxPayloadSize)},
		{"payload containing the sync pattern", TypeData, 1, []byte{0x7E, 0x7E, 0x01, 0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.ftype, tt.seq, tt.payload)
			require.NoError(t, err)

			encoded, err := f.Encode()
			require.NoError(t, err)

			// Preamble + sync must precede the header exactly as spec'd.
			for i := 0; i < PreambleSize; i++ {
				assert.Equal(t, byte(0xAA), encoded[i])
			}
			assert.Equal(t, Sync[0], encoded[PreambleSize])
			assert.Equal(t, Sync[1], encoded[PreambleSize+1])

			content := encoded[PreambleSize+len(Sync):]
			decoded, n, err := DecodeHeaderAndCRC(content)
			require.NoError(t, err)
			assert.Equal(t, len(content), n)
			assert.Equal(t, tt.ftype, decoded.Type)
			assert.Equal(t, tt.seq, decoded.Sequence)
			assert.Equal(t, tt.payload, decoded.Payload)
		})
	}
}

func TestPayloadTooLargeIsRejectedAtConstruction(t *testing.T) {
	_, err := New(TypeData, 0, make([]byte, MaxPayloadSize+1))
	assert.Error(t, err)
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	f := &Frame{Type: TypeData, Payload: make([]byte, MaxPayloadSize+1)}
	_, err := f.Encode()
	assert.Error(t, err)
}

func TestCRCFailureOnSingleBitFlip(t *testing.T) {
	f, err := New(TypeData, 3, []byte("acoustic git"))
	require.NoError(t, err)
	encoded, err := f.Encode()
	require.NoError(t, err)

	content := encoded[PreambleSize+len(Sync):]
	corrupted := append([]byte(nil), content...)
	corrupted[HeaderSize] ^= 0x01 // flip one bit inside the payload

	_, _, err = DecodeHeaderAndCRC(corrupted)
	require.Error(t, err)
	var crcErr *CRCError
	require.ErrorAs(t, err, &crcErr)
	assert.NotEqual(t, crcErr.Received, crcErr.Computed)
}

func TestHeaderLengthAboveMaxIsRejected(t *testing.T) {
	content := []byte{byte(TypeData), 0, MaxPayloadSize + 1}
	_, _, err := DecodeHeaderAndCRC(content)
	assert.Error(t, err)
}

func TestTruncatedFrameIsRejected(t *testing.T) {
	content := []byte{byte(TypeData), 0, 10, 1, 2, 3} // declares 10 bytes, has 3
	_, _, err := DecodeHeaderAndCRC(content)
	assert.Error(t, err)
}

func TestChecksumKnownVector(t *testing.T) {
	// CRC-16-CCITT (poly 0x1021, init 0xFFFF, no xorout) of "123456789"
	// is a widely cited test vector (0x29B1) for this exact variant.
	got := Checksum([]byte("123456789"))
	assert.Equal(t, uint16(0x29B1), got)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "DATA", TypeData.String())
	assert.Equal(t, "SYN-ACK", TypeSynAck.String())
	assert.Contains(t, Type(0x99).String(), "UNKNOWN")
}

func TestTypeIsValid(t *testing.T) {
	assert.True(t, TypeRst.IsValid())
	assert.False(t, Type(0xEE).IsValid())
}
