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

// Package afsk implements Bell-202-style audio frequency-shift keying:
// byte streams modulated to, and demodulated from, mono float32 audio
// samples.
package afsk

import "math"

// Bell-202-style AFSK parameters.
const (
	SampleRate = 48000 // Hz
	MarkFreq   = 1200  // Hz, binary 1
	SpaceFreq  = 2200  // Hz, binary 0
	BaudRate   = 300   // bits/sec

	// SamplesPerBit is fixed by SampleRate/BaudRate: 160 at the
	// defaults above.
	SamplesPerBit = SampleRate / BaudRate

	// DefaultVolume scales transmit amplitude to avoid clipping on
	// cheap consumer sound hardware.
	DefaultVolume = 0.08

	// Bandwidth is the passband width of each tone's bandpass filter.
	// 400 Hz is the minimum that reliably recovers a 64-byte payload
	// under 0.1%-class sample clock skew; 200 Hz (the figure used by
	// the original prototype) rejects too much off-center energy once
	// drift accumulates over a frame.
	Bandwidth = 400
)

// Modulator turns bytes into a continuous-phase AFSK waveform. The
// phase is carried across calls so that successive bits — and
// successive bytes — never discontinue, which is what keeps the
// transmitted spectrum free of splatter at bit boundaries.
type Modulator struct {
	sampleRate float64
	markFreq   float64
	spaceFreq  float64
	samplesPerBit int
	volume     float32
	phase      float64
}

// NewModulator constructs a Modulator at the Bell-202 defaults with
// the given transmit volume (0.0-1.0; 0 selects DefaultVolume).
func NewModulator(volume float64) *Modulator {
	if volume <= 0 {
		volume = DefaultVolume
	}
	return &Modulator{
		sampleRate:    SampleRate,
		markFreq:      MarkFreq,
		spaceFreq:     SpaceFreq,
		samplesPerBit: SamplesPerBit,
		volume:        float32(volume),
	}
}

// Reset zeroes the carried phase, as if the modulator were newly
// constructed. Callers start a new frame's preamble with Reset so
// every transmission begins from a known phase.
func (m *Modulator) Reset() {
	m.phase = 0
}

// ModulateBit returns SamplesPerBit samples of mark or space tone,
// continuing the modulator's running phase.
func (m *Modulator) ModulateBit(bit int) []float32 {
	freq := m.spaceFreq
	if bit != 0 {
		freq = m.markFreq
	}

	out := make([]float32, m.samplesPerBit)
	for i := range out {
		t := float64(i) / m.sampleRate
		out[i] = m.volume * float32(math.Sin(2*math.Pi*freq*t+m.phase))
	}

	m.phase += 2 * math.Pi * freq * float64(m.samplesPerBit) / m.sampleRate
	m.phase = math.Mod(m.phase, 2*math.Pi)
	return out
}

// ModulateByte serializes b LSB-first into 8 bits of tone.
func (m *Modulator) ModulateByte(b byte) []float32 {
	out := make([]float32, 0, m.samplesPerBit*8)
	for i := 0; i < 8; i++ {
		bit := int((b >> uint(i)) & 1)
		out = append(out, m.ModulateBit(bit)...)
	}
	return out
}

// Modulate renders data as a single continuous-phase waveform.
func (m *Modulator) Modulate(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	out := make([]float32, 0, len(data)*m.samplesPerBit*8)
	for _, b := range data {
		out = append(out, m.ModulateByte(b)...)
	}
	return out
}
