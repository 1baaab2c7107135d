// Package ipcpub streams indicator-engine snapshots to a downstream
// risk/recorder collaborator over a Unix domain socket, adapted from the
// teacher's ipc/publisher.go (which dialed a Rust core over the same kind
// of socket for ticker/depth events). Unlike the teacher's version, Publish
// never blocks the caller on a dial/retry: the hot path only enqueues onto
// a bounded channel, and a single background goroutine owns the connection,
// since this publisher sits downstream of the same receive loop that feeds
// the ring and must not add latency to it.
package ipcpub

import (
	"encoding/json"
	"net"
	"time"

	"github.com/Charliesj0129/shijim/internal/logging"
)

// Envelope is the newline-delimited JSON frame sent to the downstream
// collaborator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Snapshot is the indicator-engine payload type published under the
// "indicator_snapshot" envelope: the OFI/VPIN/Hawkes values computed for
// one decoded market-data frame, keyed by the ring sequence number they
// were derived from.
type Snapshot struct {
	Seq             uint64  `json:"seq"`
	TransactTime    uint64  `json:"transact_time"`
	OFI             float64 `json:"ofi,omitempty"`
	OFIValid        bool    `json:"ofi_valid"`
	VPIN            float64 `json:"vpin,omitempty"`
	VPINValid       bool    `json:"vpin_valid"`
	HawkesIntensity float64 `json:"hawkes_intensity,omitempty"`
}

// queueDepth bounds how many unsent envelopes the publisher holds before
// dropping the newest one; the downstream collaborator is a diagnostic
// consumer, not authoritative, so data loss under backpressure is
// acceptable and preferred over blocking the producer.
const queueDepth = 256

// Publisher streams JSON envelopes to a Unix domain socket, reconnecting
// best-effort in the background. Publish is safe to call from the ring's
// hot path.
type Publisher struct {
	path  string
	log   *logging.Logger
	queue chan []byte
	done  chan struct{}
}

// NewPublisher starts a Publisher dialing path in the background and
// returns immediately; the downstream collaborator may not be listening
// yet, and the background loop will keep retrying.
func NewPublisher(path string, log *logging.Logger) *Publisher {
	p := &Publisher{
		path:  path,
		log:   log,
		queue: make(chan []byte, queueDepth),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish marshals payload under msgType and enqueues it as a
// newline-terminated JSON envelope. If the queue is full (downstream is
// unreachable or slow), the envelope is dropped rather than blocking the
// caller.
func (p *Publisher) Publish(msgType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return
	}
	msg = append(msg, '\n')

	select {
	case p.queue <- msg:
	default:
		p.log.Warnf("queue full, dropping %s snapshot", msgType)
	}
}

// run owns the connection for the lifetime of the Publisher: it dials
// lazily on the first queued envelope and redials on write failure.
func (p *Publisher) run() {
	var conn net.Conn
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-p.done:
			return
		case msg := <-p.queue:
			if conn == nil {
				c, err := net.Dial("unix", p.path)
				if err != nil {
					continue // drop this envelope; next one retries the dial
				}
				conn = c
				p.log.Infof("connected to %s", p.path)
			}
			if _, err := conn.Write(msg); err != nil {
				conn.Close()
				conn = nil
				time.Sleep(100 * time.Millisecond)
			}
		}
	}
}

// Close stops the background loop and releases the connection, if any.
func (p *Publisher) Close() {
	close(p.done)
}
