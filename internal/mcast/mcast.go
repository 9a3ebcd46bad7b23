// Package mcast creates and joins IPv4/IPv6 multicast UDP sockets.
//
// This is the Go analog of mcast_socket() in the original PulseAudio
// module-rtp-recv: create a datagram socket of the matching address
// family, enable address reuse, join the group, and bind so that only
// that group's traffic is delivered.
package mcast

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/sebas/rtprecv/internal/errs"
)

// Endpoint is a joined multicast UDP socket bound to group:port.
type Endpoint struct {
	conn  *net.UDPConn
	group net.IP
	port  int
}

// Join creates a UDP socket, enables SO_REUSEADDR, binds to group:port so
// only that group's traffic arrives, and joins the multicast group on the
// system-assigned multicast interface. An unparseable groupAddr returns
// errs.ErrConfig; on any socket failure, partial state (the socket) is
// cleaned up before returning errs.ErrSocket.
func Join(groupAddr string, port int) (*Endpoint, error) {
	ip := net.ParseIP(groupAddr)
	if ip == nil {
		return nil, fmt.Errorf("%w: invalid multicast address %q", errs.ErrConfig, groupAddr)
	}

	network := "udp4"
	if ip.To4() == nil {
		network = "udp6"
	}

	lc := net.ListenConfig{Control: setReuseAddr}

	addr := net.JoinHostPort(ip.String(), strconv.Itoa(port))
	pc, err := lc.ListenPacket(context.Background(), network, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %v", errs.ErrSocket, addr, err)
	}

	udpConn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("%w: unexpected packet conn type", errs.ErrSocket)
	}

	if network == "udp4" {
		p := ipv4.NewPacketConn(udpConn)
		if err := p.JoinGroup(nil, &net.UDPAddr{IP: ip}); err != nil {
			udpConn.Close()
			return nil, fmt.Errorf("%w: join group %s: %v", errs.ErrSocket, groupAddr, err)
		}
	} else {
		p := ipv6.NewPacketConn(udpConn)
		if err := p.JoinGroup(nil, &net.UDPAddr{IP: ip}); err != nil {
			udpConn.Close()
			return nil, fmt.Errorf("%w: join group %s: %v", errs.ErrSocket, groupAddr, err)
		}
	}

	return &Endpoint{conn: udpConn, group: ip, port: port}, nil
}

// Conn returns the underlying UDP connection for reading/polling.
func (e *Endpoint) Conn() *net.UDPConn { return e.conn }

// Close releases the socket.
func (e *Endpoint) Close() error { return e.conn.Close() }
