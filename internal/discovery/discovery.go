// Package discovery implements the SAP-driven discovery loop that
// creates, refreshes, and retires sessions, and the liveness reaper that
// retires sessions which have gone quiet.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/sebas/rtprecv/internal/mcast"
	"github.com/sebas/rtprecv/internal/session"
	"github.com/sebas/rtprecv/internal/sink"
	"github.com/sebas/rtprecv/internal/wire/sap"
	"github.com/sebas/rtprecv/internal/wire/sdpinfo"
)

// QueueCapacity is the hard cap on a session's jitter queue (40 MiB,
// matching MEMBLOCKQ_MAXLENGTH in the original module).
const QueueCapacity = 40 * 1024 * 1024

// DefaultIntendedLatency is the target queue fill absent other
// constraints (500ms, matching LATENCY_USEC in the original module).
const DefaultIntendedLatency = 500 * time.Millisecond

const sapReadBufSize = 65536

// HostFactory builds the host audio sink a newly created session
// attaches its playback adapter to.
type HostFactory func(info sdpinfo.Info) sink.Sink

// Loop owns the SAP socket and drives session create/refresh/destroy
// through the registry; the Reaper is the registry's only other mutator.
type Loop struct {
	endpoint *mcast.Endpoint
	registry *session.Registry
	hosts    HostFactory

	// joinRTP and startIngest are overridable for tests so they don't
	// need a real multicast-capable network stack.
	joinRTP     func(groupAddr string, port int) (*mcast.Endpoint, error)
	startIngest func(sess *session.Session, ep *mcast.Endpoint)
}

// NewLoop creates a discovery loop bound to endpoint (already joined to
// the SAP multicast group) and reg.
func NewLoop(endpoint *mcast.Endpoint, reg *session.Registry, hosts HostFactory) *Loop {
	l := &Loop{
		endpoint: endpoint,
		registry: reg,
		hosts:    hosts,
		joinRTP:  mcast.Join,
	}
	l.startIngest = func(sess *session.Session, ep *mcast.Endpoint) {
		sess.Adapter().Attach(func(ctx context.Context) {
			runIngestLoop(ctx, ep, sess)
		})
	}
	return l
}

// Run reads SAP datagrams until ctx is canceled, driving session
// create/refresh/destroy via the registry. It is the main-context event
// loop and must run on a single goroutine.
func (l *Loop) Run(ctx context.Context) {
	buf := make([]byte, sapReadBufSize)
	conn := l.endpoint.Conn()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			slog.Warn("[Discovery] sap read error", "err", err)
			continue
		}

		l.handleDatagram(buf[:n], time.Now())
	}
}

// handleDatagram implements the five-step discovery algorithm.
func (l *Loop) handleDatagram(buf []byte, now time.Time) {
	msg, err := sap.Decode(buf)
	if err != nil {
		slog.Debug("[Discovery] dropping malformed sap datagram", "err", err)
		return
	}

	info, err := sdpinfo.Parse(msg.SDPBytes)
	if err != nil {
		slog.Debug("[Discovery] dropping sap datagram with bad sdp", "err", err)
		return
	}

	if msg.Goodbye {
		if _, ok := l.registry.Get(info.Origin); ok {
			slog.Info("[Discovery] goodbye received, destroying session", "origin", info.Origin)
			l.registry.Destroy(info.Origin)
		}
		return
	}

	if existing, ok := l.registry.Get(info.Origin); ok {
		existing.Refresh(now)
		return
	}

	if err := l.create(info, now); err != nil {
		slog.Warn("[Discovery] failed to create session", "origin", info.Origin, "err", err)
	}
}

func (l *Loop) create(info sdpinfo.Info, now time.Time) error {
	rtpEndpoint, err := l.joinRTP(info.GroupAddr, info.Port)
	if err != nil {
		return fmt.Errorf("join rtp group: %w", err)
	}

	host := l.hosts(info)

	sess := session.New(session.Params{
		Origin:          info.Origin,
		SampleSpec:      info.SampleSpec,
		PayloadType:     info.PayloadType,
		IntendedLatency: DefaultIntendedLatency,
		Capacity:        QueueCapacity,
		MaxRewind:       QueueCapacity / 4,
	}, host, now)

	if err := l.registry.Create(sess); err != nil {
		rtpEndpoint.Close()
		return fmt.Errorf("%w", err)
	}

	l.startIngest(sess, rtpEndpoint)

	return nil
}

// runIngestLoop is the per-session I/O-context poll loop: it reads RTP
// datagrams off rtpEndpoint and feeds them to sess.Ingest until ctx is
// canceled (on session destruction) or the socket errors out.
func runIngestLoop(ctx context.Context, ep *mcast.Endpoint, sess *session.Session) {
	defer ep.Close()
	buf := make([]byte, 65536)
	conn := ep.Conn()

	retuneTicker := time.NewTicker(time.Second)
	defer retuneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-retuneTicker.C:
			sess.RetuneIfDue(time.Now())
			continue
		default:
		}

		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}

		if err := sess.Ingest(buf[:n], time.Now()); err != nil {
			slog.Debug("[Session] dropped packet", "err", err)
		}
	}
}
