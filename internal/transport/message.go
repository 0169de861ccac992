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
	"encoding/binary"
	"fmt"
	"time"
)

const messageLengthPrefixSize = 4

// MessageTransport layers length-prefixed messages over a Transport's
// raw fragment stream, so a caller can move a payload larger than one
// frame's 64-byte ceiling while the ARQ beneath it still only ever
// holds one unacknowledged fragment at a time. The underlying
// Transport's Send/Receive remain directly usable for single-fragment
// traffic; this is purely an additive convenience for the session
// layer.
type MessageTransport struct {
	t *Transport
}

// NewMessage wraps t for message-oriented use.
func NewMessage(t *Transport) *MessageTransport {
	return &MessageTransport{t: t}
}

// SendMessage sends message as a 4-byte little-endian length prefix
// followed by its bytes, both carried as a sequence of ARQ fragments.
func (m *MessageTransport) SendMessage(message []byte) error {
	header := make([]byte, messageLengthPrefixSize)
	binary.LittleEndian.PutUint32(header, uint32(len(message)))
	return m.t.Send(append(header, message...))
}

// ReceiveMessage reassembles one complete length-prefixed message,
// blocking on the underlying Transport until timeout elapses or the
// whole message (header plus body) has arrived.
func (m *MessageTransport) ReceiveMessage(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	buf, err := m.fillTo(messageLengthPrefixSize, nil, deadline)
	if err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(buf[:messageLengthPrefixSize])
	buf, err = m.fillTo(messageLengthPrefixSize+int(length), buf, deadline)
	if err != nil {
		return nil, err
	}

	return buf[messageLengthPrefixSize : messageLengthPrefixSize+int(length)], nil
}

func (m *MessageTransport) fillTo(n int, buf []byte, deadline time.Time) ([]byte, error) {
	for len(buf) < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("transport: message incomplete at deadline: %w", ErrTimeout)
		}
		chunk, err := m.t.Receive(remaining)
		if err != nil {
			return nil, err
		}
		buf = append(buf, chunk...)
	}
	return buf, nil
}
