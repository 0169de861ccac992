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

// Package modem wires L0 through L3b into a single instance the CLI
// harness and callers outside this module can drive with one
// constructor.
package modem

import "github.com/gitonair/modem/internal/afsk"

// Config is the complete recognized option set: audio backend
// selection (Loopback/Audible/device indices) plus the one tunable on
// the AFSK layer (TxVolume).
type Config struct {
	// Loopback routes TX samples directly into the capture buffer
	// instead of the real device, for hardware-free testing of the
	// whole stack.
	Loopback bool

	// Audible, when Loopback is set, also emits TX samples to the real
	// device ("audible loopback") so a human can hear what's being
	// sent while the receive path still reads from the loopback path.
	Audible bool

	// InputDevice and OutputDevice select a specific PortAudio device
	// index. 0 (or a negative value) means "use the platform default."
	InputDevice  int
	OutputDevice int

	// TxVolume scales playback amplitude in [0, 1]. 0 selects
	// afsk.DefaultVolume.
	TxVolume float64
}

// DefaultConfig returns the recognized-option defaults: real hardware,
// default devices, default transmit volume.
func DefaultConfig() Config {
	return Config{TxVolume: afsk.DefaultVolume}
}
