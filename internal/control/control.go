// Package control exposes a read-only, in-process introspection surface
// over the session registry. It deliberately accepts no commands: the
// module's only inputs are SAP announcements and RTP packets, never an
// external control plane.
package control

import (
	"github.com/sebas/rtprecv/internal/session"
)

// SessionInfo is a point-in-time, read-only view of one live session.
type SessionInfo struct {
	Origin          string
	PayloadType     uint8
	RateHz          uint32
	Channels        int
	LastActivitySec int64
}

// Inspector reports on a registry's current contents without being able
// to mutate it.
type Inspector struct {
	registry *session.Registry
}

// NewInspector wraps reg for read-only introspection.
func NewInspector(reg *session.Registry) *Inspector {
	return &Inspector{registry: reg}
}

// List returns a snapshot of every currently tracked session.
func (in *Inspector) List() []SessionInfo {
	sessions := in.registry.Snapshot()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionInfo{
			Origin:          s.Origin,
			PayloadType:     s.PayloadType(),
			RateHz:          s.SampleSpec.RateHz,
			Channels:        s.SampleSpec.Channels,
			LastActivitySec: s.LastActivitySec(),
		})
	}
	return out
}

// Count returns the number of currently tracked sessions.
func (in *Inspector) Count() int {
	return in.registry.Len()
}
