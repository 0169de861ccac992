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

package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/gitonair/modem/internal/modem"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultTxVolume       = 0.08
)

func main() {
	var (
		mode         = flag.String("mode", "", "connect (dial a peer) or listen (wait for one)")
		loopback     = flag.Bool("loopback", false, "use an in-process loopback device instead of real audio hardware")
		audible      = flag.Bool("audible", false, "in loopback mode, also emit TX samples to the real device")
		inputDevice  = flag.Int("input-device", 0, "input device index (0 for platform default)")
		outputDevice = flag.Int("output-device", 0, "output device index (0 for platform default)")
		txVolume     = flag.Float64("tx-volume", defaultTxVolume, "playback amplitude scale, 0.0-1.0")
		timeout      = flag.Duration("timeout", defaultConnectTimeout, "how long listen mode waits for a peer's handshake (not used in connect mode)")
		listDevices  = flag.Bool("list-devices", false, "list audio devices and exit")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -mode connect|listen [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Carries bytes read from stdin over sound, and writes bytes\nreceived from the peer to stdout.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := modem.Config{
		Loopback:     *loopback,
		Audible:      *audible,
		InputDevice:  *inputDevice,
		OutputDevice: *outputDevice,
		TxVolume:     *txVolume,
	}

	m, err := modem.New(cfg)
	if err != nil {
		log.Fatalf("❌ failed to initialize modem: %v", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Printf("⚠️  error during shutdown: %v", err)
		}
	}()

	if *listDevices {
		runListDevices(m)
		return
	}

	switch *mode {
	case "connect":
		runConnect(m, *timeout)
	case "listen":
		runListen(m, *timeout)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runListDevices(m *modem.Modem) {
	devices, err := m.ListDevices()
	if err != nil {
		log.Fatalf("❌ failed to list devices: %v", err)
	}
	for _, d := range devices {
		fmt.Printf("%d: %s (in=%d out=%d rate=%.0fHz)\n", d.Index, d.Name, d.MaxInputChans, d.MaxOutputChans, d.DefaultSampleHz)
	}
}

func runConnect(m *modem.Modem, timeout time.Duration) {
	sess, err := m.Connect()
	if err != nil {
		log.Fatalf("❌ connect failed: %v", err)
	}
	log.Printf("✅ connected")
	pumpStdin(sess)
}

func runListen(m *modem.Modem, timeout time.Duration) {
	sess, err := m.Accept(timeout)
	if err != nil {
		log.Fatalf("❌ accept failed: %v", err)
	}
	log.Printf("✅ peer connected")
	pumpStdin(sess)
}

// recvPollInterval bounds how long one turn of pumpStdin's loop waits
// for the peer before checking stdin again. Send and Recv share one
// half-duplex Device underneath the session, so they must never run
// concurrently — this loop takes turns on a single goroutine instead
// of pairing a reader goroutine with a writer goroutine the way a
// full-duplex stream would.
const recvPollInterval = 50 * time.Millisecond

// pumpStdin is the CLI's two halves of the session: everything on
// stdin is sent to the peer, and everything the peer sends is written
// to stdout, until stdin closes or Close/Reset ends the session.
func pumpStdin(sess interface {
	Send([]byte) error
	Recv(time.Duration) ([]byte, error)
	Close() error
}) {
	// stdinCh is fed by a goroutine that only ever touches os.Stdin,
	// never the session, so it can block on a real Read without
	// racing Send/Recv below.
	stdinCh := make(chan []byte)
	go func() {
		defer close(stdinCh)
		buf := make([]byte, 1024)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				stdinCh <- chunk
			}
			if err != nil {
				if err != io.EOF {
					log.Printf("❌ stdin read failed: %v", err)
				}
				return
			}
		}
	}()

	stdinOpen := true
	for {
		if stdinOpen {
			select {
			case data, ok := <-stdinCh:
				if !ok {
					stdinOpen = false
				} else if err := sess.Send(data); err != nil {
					log.Printf("❌ send failed: %v", err)
					stdinOpen = false
				}
			default:
			}
		}

		data, err := sess.Recv(recvPollInterval)
		if err == nil {
			if _, werr := os.Stdout.Write(data); werr != nil {
				log.Printf("❌ stdout write failed: %v", werr)
				break
			}
			continue
		}
		if !stdinOpen {
			break
		}
	}

	if err := sess.Close(); err != nil {
		log.Printf("⚠️  error closing session: %v", err)
	}
}
