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

package session

import (
	"time"

	"github.com/gitonair/modem/internal/frame"
)

// Link is what a Session needs from the framer beneath it.
// *framer.Framer satisfies it; tests substitute a fake pair connected
// by channels, the same way internal/transport's tests do, so the
// handshake state machine can be exercised without AFSK or audio.
type Link interface {
	Send(f *frame.Frame) error
	Receive(timeout time.Duration) (*frame.Frame, error)
	Reset()
}
