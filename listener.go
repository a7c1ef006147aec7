package suitcap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lorenzosaino/go-sysctl"
)

// PacketSource is anything that yields one datagram per call. The returned
// slice is valid only until the next call.
type PacketSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// ListenerConfig holds the socket options for a Listener.
type ListenerConfig struct {
	ReadTimeout time.Duration // how often a blocked receive wakes to check for cancellation
	RecvBuffer  int           // requested SO_RCVBUF in bytes, or 0 for the kernel default
}

// Listener owns the UDP socket and a reusable receive buffer.
type Listener struct {
	conn        *net.UDPConn
	buf         []byte
	readTimeout time.Duration

	Datagrams int // datagrams received
	Bytes     int // bytes received
}

// NewListener binds a UDP socket on all interfaces at port. Port 0 picks an
// ephemeral port; see Addr.
func NewListener(port int, config ListenerConfig) (*Listener, error) {
	laddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("could not bind UDP port %d: %w", port, err)
	}
	if config.RecvBuffer > 0 {
		checkKernelReceiveBuffer(config.RecvBuffer)
		if err := conn.SetReadBuffer(config.RecvBuffer); err != nil {
			conn.Close()
			return nil, fmt.Errorf("could not set UDP receive buffer to %d bytes: %w", config.RecvBuffer, err)
		}
	}
	l := &Listener{
		conn:        conn,
		buf:         make([]byte, MaxPacketSize),
		readTimeout: config.ReadTimeout,
	}
	if l.readTimeout <= 0 {
		l.readTimeout = 250 * time.Millisecond
	}
	return l, nil
}

// Addr returns the local address the socket is bound to.
func (l *Listener) Addr() *net.UDPAddr {
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// Next blocks until one datagram arrives or ctx is done. The receive buffer
// is zeroed before every receive. Read timeouts are not errors: they only
// give Next a chance to notice cancellation.
func (l *Listener) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clear(l.buf)
		if err := l.conn.SetReadDeadline(time.Now().Add(l.readTimeout)); err != nil {
			return nil, err
		}
		n, _, err := l.conn.ReadFromUDP(l.buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return nil, fmt.Errorf("UDP receive failed: %w", err)
		}
		l.Datagrams++
		l.Bytes += n
		return l.buf[:n], nil
	}
}

// Close closes the socket.
func (l *Listener) Close() error {
	return l.conn.Close()
}

// kernelReceiveBufferMax returns the largest SO_RCVBUF the kernel will grant.
func kernelReceiveBufferMax() (int, error) {
	val, err := sysctl.Get("net.core.rmem_max")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(val))
}

// checkKernelReceiveBuffer warns when the kernel will silently cap the
// requested receive buffer. The kernel buffer is the only place packets
// wait while a record is being written.
func checkKernelReceiveBuffer(requested int) {
	limit, err := kernelReceiveBufferMax()
	if err != nil {
		ProblemLogger.Printf("Could not read net.core.rmem_max: %v", err)
		return
	}
	if requested > limit {
		ProblemLogger.Printf("Requested UDP receive buffer %d bytes exceeds net.core.rmem_max=%d; "+
			"the kernel will use at most %d. Raise it with: sudo sysctl -w net.core.rmem_max=%d",
			requested, limit, limit, requested)
	}
}
