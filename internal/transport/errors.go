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

import "errors"

var (
	// ErrLinkFailure is returned when a send exhausts DefaultRetries
	// attempts without a matching ACK.
	ErrLinkFailure = errors.New("transport: link failure, retries exhausted")

	// ErrPeerReset is returned when the peer answers with RST instead
	// of the expected ACK.
	ErrPeerReset = errors.New("transport: peer reset the connection")

	// ErrTimeout is returned when Receive's deadline elapses with no
	// frame delivered.
	ErrTimeout = errors.New("transport: timed out waiting for a frame")

	// ErrClosed is returned by operations on a Transport that has
	// already been closed.
	ErrClosed = errors.New("transport: closed")

	// ErrPeerClosed is returned by Receive when the peer sends FIN
	// instead of DATA. The FIN is ACKed before this error is returned.
	ErrPeerClosed = errors.New("transport: peer closed the connection")
)
