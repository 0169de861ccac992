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

package afsk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModulateBitProducesFixedLength(t *testing.T) {
	m := NewModulator(0)
	assert.Len(t, m.ModulateBit(0), SamplesPerBit)
	assert.Len(t, m.ModulateBit(1), SamplesPerBit)
}

func TestModulateBitStaysWithinVolumeBound(t *testing.T) {
	m := NewModulator(0.08)
	for _, bit := range []int{0, 1} {
		for _, s := range m.ModulateBit(bit) {
			assert.LessOrEqual(t, float64(s), 0.08+1e-6)
			assert.GreaterOrEqual(t, float64(s), -0.08-1e-6)
		}
	}
}

func TestModulatePhaseIsContinuousAcrossBits(t *testing.T) {
	m := NewModulator(0.08)
	first := m.ModulateBit(1)
	second := m.ModulateBit(1)
	// Consecutive same-tone bits must not discontinue: the sample right
	// after a boundary should be close to the one right before it, to
	// within one sample's worth of the tone's own slope.
	assert.InDelta(t, first[len(first)-1], second[0], 0.08)
}

func TestModulateEmptyInputIsEmpty(t *testing.T) {
	m := NewModulator(0)
	assert.Nil(t, m.Modulate(nil))
}

// withPreamble prepends 16 bytes of 0xAA, mirroring how every real
// frame on the wire begins, so the demodulator's bit-timing recovery
// has the same lead-in it would see in production instead of cold
// filter state landing mid-bit.
func withPreamble(payload []byte) []byte {
	return append(bytes.Repeat([]byte{0xAA}, 16), payload...)
}

func TestDemodulateRoundTripsThroughLoopback(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"short ascii", []byte("hi")},
		{"sync-like bytes", []byte{0x7E, 0x7E, 0x01}},
		{"all zero bits", []byte{0x00, 0x00}},
		{"all one bits", []byte{0xFF, 0xFF}},
		{"mixed", []byte("Hello from acoustic modem! Testing 1-2-3.")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := withPreamble(tt.payload)

			mod := NewModulator(0.08)
			samples := mod.Modulate(data)
			require.NotEmpty(t, samples)

			demod := NewDemodulator()
			decoded := demod.Demodulate(samples)
			require.GreaterOrEqual(t, len(decoded), len(data))

			// The tail of the decoded stream (after the preamble) must
			// match the original payload exactly in the noise-free case.
			tail := decoded[len(decoded)-len(tt.payload):]
			assert.Equal(t, tt.payload, tail)
		})
	}
}

func TestDemodulateTooShortReturnsNil(t *testing.T) {
	demod := NewDemodulator()
	assert.Nil(t, demod.Demodulate(make([]float32, SamplesPerBit*4)))
}

func TestFindBitBoundaryLocatesOnsetAfterSilence(t *testing.T) {
	mod := NewModulator(0.08)
	tone := mod.Modulate(withPreamble([]byte("x")))

	silence := make([]float32, 4000)
	samples := append(silence, tone...)

	demod := NewDemodulator()
	mark, space := demod.envelopes(samples)
	boundary := findBitBoundary(mark, space)

	// The strongest energy rise should land at or shortly after the
	// silence/tone transition, not deep inside either region.
	assert.InDelta(t, len(silence), boundary, float64(SamplesPerBit))
}

func TestMeanHelper(t *testing.T) {
	assert.Equal(t, 0.0, mean(nil))
	assert.Equal(t, 2.0, mean([]float64{1, 2, 3}))
}
