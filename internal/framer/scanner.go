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

// Package framer implements the L2 framing contract: encoding a
// payload into the on-wire frame layout and scanning an incoming byte
// stream for zero or more frames.
package framer

import (
	"bytes"
	"errors"

	"github.com/gitonair/modem/internal/frame"
)

// Result is one outcome of feeding bytes into a Scanner: either a
// successfully decoded Frame, or a diagnostic error for a candidate
// that failed its CRC or header check. Scanner never returns
// ErrIncomplete to a caller — that case means "come back with more
// bytes" and produces no Result at all.
type Result struct {
	Frame *frame.Frame
	Err   error
}

// Scanner incrementally decodes frames out of an arbitrary byte
// stream. It keeps unconsumed bytes in a buffer, searches that buffer
// for the Sync word and hands the bytes after each match to
// frame.DecodeHeaderAndCRC; it has no per-field state machine. A
// decoded frame is consumed whole. After a candidate fails its header
// or CRC check, scanning resumes one byte after the start of that
// candidate's Sync, so the rejected candidate's bytes are searched
// again.
type Scanner struct {
	buf []byte
}

// NewScanner returns an empty Scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Feed appends data to the scanner's internal buffer and extracts as
// many complete frames (or diagnosable failures) as the buffer now
// contains. Bytes belonging to an incomplete trailing candidate are
// retained for the next Feed call.
func (s *Scanner) Feed(data []byte) []Result {
	s.buf = append(s.buf, data...)

	var results []Result
	for {
		idx := bytes.Index(s.buf, frame.Sync[:])
		if idx < 0 {
			// Keep one byte in case it's the first half of a sync
			// pattern split across this call and the next.
			if len(s.buf) > 1 {
				s.buf = s.buf[len(s.buf)-1:]
			}
			return results
		}

		content := s.buf[idx+len(frame.Sync):]
		f, n, err := frame.DecodeHeaderAndCRC(content)

		switch {
		case err == nil:
			results = append(results, Result{Frame: f})
			s.buf = s.buf[idx+len(frame.Sync)+n:]

		case errors.Is(err, frame.ErrIncomplete):
			// Not enough bytes yet to tell; wait for the next Feed,
			// keeping the sync word so we don't have to re-find it.
			s.buf = s.buf[idx:]
			return results

		default:
			// CRC failure or corrupt length byte: this candidate is
			// dead. Resume scanning one byte after the start of the
			// failed sync, which searches its header and payload again.
			results = append(results, Result{Err: err})
			s.buf = s.buf[idx+1:]
		}
	}
}

// Reset discards any buffered, not-yet-decoded bytes.
func (s *Scanner) Reset() {
	s.buf = nil
}
