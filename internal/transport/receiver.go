// Package transport implements the UDP multicast/unicast ingestion
// receiver (C1): bind, optional multicast join, large receive buffer, and
// a blocking read loop on a dedicated goroutine that honors a shutdown
// signal with bounded stop latency.
//
// Grounded on original_source/shijim_core/src/ingestion.rs (UdpIngestor's
// bind-then-join-multicast sequencing and EAGAIN-tolerant poll loop) for
// the socket lifecycle, and the teacher's exchanges/base.go
// RunConnectionLoop for the ctx-aware retry/backoff shape.
package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Charliesj0129/shijim/internal/config"
	"github.com/Charliesj0129/shijim/internal/logging"
)

// MaxDatagramSize bounds a single UDP read (standard MTU headroom).
const MaxDatagramSize = 2048

// Receiver binds a UDP socket per spec.md §4.1 and delivers whole
// datagrams to a handler on the calling goroutine's Run loop.
type Receiver struct {
	cfg  config.IngestorConfig
	log  *logging.Logger
	fd   int
	conn net.PacketConn

	malformedReads uint64
	readErrors     uint64
}

// New binds (and, if the address is multicast and mode is NORMAL, joins)
// the configured address. Bind failure is fatal per spec.md §4.1 and is
// returned directly for the caller to treat as such.
func New(cfg config.IngestorConfig, log *logging.Logger) (*Receiver, error) {
	host, portStr, err := net.SplitHostPort(cfg.Bind)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid bind address %q: %w", cfg.Bind, err)
	}
	port, err := net.LookupPort("udp", portStr)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid bind port %q: %w", cfg.Bind, err)
	}

	ip := net.ParseIP(host)
	isMulticast := ip != nil && ip.IsMulticast() && cfg.Mode != config.ModeTesting

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("transport: socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: SO_REUSEADDR: %w", err)
	}

	recvBuf := cfg.RecvBufferBytes
	if recvBuf <= 0 {
		recvBuf = 4 * 1024 * 1024
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, recvBuf); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: SO_RCVBUF: %w", err)
	}

	// SO_RCVTIMEO is set for the socket's own blocking reads; once the fd is
	// wrapped by net.FilePacketConn it is non-blocking, so Run bounds stop
	// latency with a matching per-read deadline instead.
	timeout := unix.Timeval{Sec: 0, Usec: 100_000}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &timeout); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: SO_RCVTIMEO: %w", err)
	}

	bindAddr := &unix.SockaddrInet4{Port: port}
	if isMulticast {
		// Bind to the wildcard address for a multicast group, matching the
		// Rust ingestor's bind-to-unspecified-then-join sequencing.
		bindAddr.Addr = [4]byte{0, 0, 0, 0}
	} else if ip != nil {
		var addr4 [4]byte
		copy(addr4[:], ip.To4())
		bindAddr.Addr = addr4
	}
	if err := unix.Bind(fd, bindAddr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: bind %s: %w", cfg.Bind, err)
	}

	if isMulticast {
		mreq := &unix.IPMreq{}
		copy(mreq.Multiaddr[:], ip.To4())
		if cfg.Interface != "" {
			if iface := net.ParseIP(cfg.Interface); iface != nil {
				copy(mreq.Interface[:], iface.To4())
			}
		}
		if err := unix.SetsockoptIPMreq(fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("transport: join multicast group %s: %w", host, err)
		}
	}

	f := os.NewFile(uintptr(fd), "shijim-udp")
	conn, err := net.FilePacketConn(f)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: wrap socket: %w", err)
	}

	return &Receiver{cfg: cfg, log: log, fd: fd, conn: conn}, nil
}

// MalformedReadCount returns the receiver's malformed-read counter. Run
// never increments it, so it stays 0; non-timeout socket read errors are
// counted by ReadErrorCount (and frame-content problems by sbe.Filter).
func (r *Receiver) MalformedReadCount() uint64 { return r.malformedReads }

// ReadErrorCount returns the number of non-timeout socket read errors
// encountered across the receiver's lifetime.
func (r *Receiver) ReadErrorCount() uint64 { return r.readErrors }

// Close releases the underlying socket.
func (r *Receiver) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// Run blocks, delivering each received datagram to handle, until ctx is
// canceled. Per spec.md §4.1/§5, socket read errors other than
// timeout/EAGAIN are logged and retried with capped backoff; the loop
// never exits on its own account while ctx remains live.
func (r *Receiver) Run(ctx context.Context, handle func(frame []byte)) error {
	buf := make([]byte, MaxDatagramSize)
	backoff := 10 * time.Millisecond
	const maxBackoff = 1 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A 100ms read deadline lets the loop observe ctx cancellation
		// promptly even with no traffic arriving.
		_ = r.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				backoff = 10 * time.Millisecond
				continue
			}
			r.readErrors++
			r.log.Warnf("read error: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}

		backoff = 10 * time.Millisecond
		handle(buf[:n])
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	if ok := asNetError(err, &ne); ok {
		return ne.Timeout()
	}
	return false
}

func asNetError(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if !ok {
		return false
	}
	*target = ne
	return true
}
