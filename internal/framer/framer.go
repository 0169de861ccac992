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

package framer

import (
	"fmt"
	"log"
	"time"

	"github.com/gitonair/modem/internal/afsk"
	"github.com/gitonair/modem/internal/audio"
	"github.com/gitonair/modem/internal/frame"
)

// Defaults for a single Receive call's capture window, per
// audio.Device.ReceiveUntilSilence.
const (
	DefaultReceiveMinSamples      = audio.DefaultMinSamples
	DefaultReceiveSilenceDuration = audio.DefaultSilenceDuration
)

// ErrTimeout is returned by Receive when no frame was decoded before
// the deadline elapsed.
var ErrTimeout = fmt.Errorf("framer: timed out waiting for a frame")

// Framer binds the frame wire format (L2) to the audio device and
// AFSK codec beneath it. It owns a Scanner so a frame split across
// two ReceiveUntilSilence calls is still assembled correctly.
type Framer struct {
	dev   *audio.Device
	mod   *afsk.Modulator
	demod *afsk.Demodulator
	scan  *Scanner
}

// New constructs a Framer over dev, transmitting at txVolume (0
// selects afsk.DefaultVolume).
func New(dev *audio.Device, txVolume float64) *Framer {
	return &Framer{
		dev:   dev,
		mod:   afsk.NewModulator(txVolume),
		demod: afsk.NewDemodulator(),
		scan:  NewScanner(),
	}
}

// Send encodes f per §3's wire layout and plays it, blocking until
// the device has drained the last sample.
func (fr *Framer) Send(f *frame.Frame) error {
	coded, err := f.Encode()
	if err != nil {
		return fmt.Errorf("framer: encode: %w", err)
	}

	fr.mod.Reset()
	samples := fr.mod.Modulate(coded)

	if err := fr.dev.Play(samples); err != nil {
		return fmt.Errorf("framer: play: %w", err)
	}
	return nil
}

// Receive waits up to timeout for one decodable frame, pulling raw
// audio from the device, demodulating it, and feeding the result
// through the scanner. CRC/header failures are logged as diagnostics
// (per §4.3's observability contract) and do not themselves end the
// wait — the caller's overall timeout does.
func (fr *Framer) Receive(timeout time.Duration) (*frame.Frame, error) {
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}

		samples := fr.dev.ReceiveUntilSilence(remaining, DefaultReceiveMinSamples, DefaultReceiveSilenceDuration)
		if len(samples) == 0 {
			continue
		}

		decoded := fr.demod.Demodulate(samples)
		if len(decoded) == 0 {
			continue
		}

		for _, r := range fr.scan.Feed(decoded) {
			if r.Err != nil {
				log.Printf("framer: dropped candidate frame: %v", r.Err)
				continue
			}
			return r.Frame, nil
		}
	}
}

// Reset discards any buffered, not-yet-decoded receive bytes. Used by
// the session layer when a connection resets: half-received garbage
// from the previous connection must never bleed into the next one.
func (fr *Framer) Reset() {
	fr.scan.Reset()
}
