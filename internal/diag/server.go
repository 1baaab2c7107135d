// Package diag implements the out-of-scope dashboard/TUI collaborator's
// boundary contract: a read-only WebSocket fan-out of decoded ticks and
// indicator snapshots, so an external dashboard can observe the pipeline
// without being wired into the hot path.
//
// Grounded on the teacher's binance/feeder.go, which used
// nhooyr.io/websocket to consume exchange streams; here the same library
// is repurposed to broadcast outward to dashboard clients instead.
package diag

import (
	"context"
	"net/http"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Charliesj0129/shijim/internal/logging"
)

// Snapshot is one broadcast unit: a decoded tick plus the indicator
// values computed from it, serialized as JSON to every connected client.
type Snapshot struct {
	Seq          uint64  `json:"seq"`
	TransactTime uint64  `json:"transact_time"`
	BidPrice     float64 `json:"bid_price"`
	BidSize      float64 `json:"bid_size"`
	AskPrice     float64 `json:"ask_price"`
	AskSize      float64 `json:"ask_size"`
	OFI          float64 `json:"ofi,omitempty"`
	OFIValid     bool    `json:"ofi_valid"`
	VPIN         float64 `json:"vpin,omitempty"`
	VPINValid    bool    `json:"vpin_valid"`
}

// Server broadcasts Snapshots to every currently connected WebSocket
// client. A slow client misses snapshots (they are dropped while its
// buffer is full) rather than blocking the broadcaster; it stays
// connected. This matches the ring's own "never block the producer" policy.
type Server struct {
	log *logging.Logger

	mu      sync.Mutex
	clients map[chan Snapshot]struct{}
}

// New constructs a diagnostics broadcast server.
func New(log *logging.Logger) *Server {
	return &Server{log: log, clients: make(map[chan Snapshot]struct{})}
}

// Broadcast fans out snap to every connected client's buffered channel,
// dropping it for any client whose channel is full instead of blocking.
func (s *Server) Broadcast(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Handler returns an http.Handler upgrading connections to WebSocket and
// streaming Snapshots to them until the client disconnects.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			s.log.Warnf("accept failed: %v", err)
			return
		}
		defer conn.CloseNow()

		ch := make(chan Snapshot, 64)
		s.mu.Lock()
		s.clients[ch] = struct{}{}
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.clients, ch)
			s.mu.Unlock()
		}()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-ch:
				if err := wsjson.Write(ctx, conn, snap); err != nil {
					return
				}
			}
		}
	})
}

// Run serves the diagnostics WebSocket endpoint at addr until ctx is
// canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/diag", s.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		_ = srv.Close()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
