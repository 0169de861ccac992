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

package transport

import (
	"time"

	"github.com/gitonair/modem/internal/frame"
)

// Link is the framed, but still unreliable, channel a Transport runs
// its ARQ loop over. *framer.Framer satisfies it; tests substitute a
// fake that can drop or corrupt chosen frames in flight without
// touching audio or AFSK at all.
type Link interface {
	Send(f *frame.Frame) error
	Receive(timeout time.Duration) (*frame.Frame, error)
}
