package handshake

import (
	"context"
	"fmt"
	"sync"

	"github.com/synckit/replicate/pkg/rpc"
	"github.com/synckit/replicate/pkg/rplerr"
)

// Range is the inclusive wire-protocol version range this build of the
// engine understands.
type Range struct {
	Min int
	Max int
}

func (r Range) contains(version int) bool {
	return version >= r.Min && version <= r.Max
}

// Handshake performs, and caches, the single protocol version check a
// process makes against its authority connection.
type Handshake struct {
	authority rpc.Authority
	supported Range

	once   sync.Once
	result error
	remote int
}

// New builds a Handshake that will query authority and accept any
// version within supported.
func New(authority rpc.Authority, supported Range) *Handshake {
	return &Handshake{authority: authority, supported: supported}
}

// Check runs the protocol query on first call and returns its cached
// outcome on every subsequent call, regardless of ctx. A non-nil error
// is always an *rplerr.Error with KindProtocolMismatch or KindNetwork.
func (h *Handshake) Check(ctx context.Context) error {
	h.once.Do(func() {
		info, err := h.authority.Protocol(ctx)
		if err != nil {
			h.result = rplerr.New(rplerr.KindNetwork, "handshake", "", "", err)
			return
		}
		h.remote = info.Version
		if !h.supported.contains(info.Version) {
			h.result = rplerr.New(rplerr.KindProtocolMismatch, "handshake", "", "",
				fmt.Errorf("authority protocol version %d outside supported range [%d, %d]",
					info.Version, h.supported.Min, h.supported.Max))
		}
	})
	return h.result
}

// RemoteVersion returns the version the authority reported to Check,
// whether or not it was inside the supported range; zero before Check has
// run or when the protocol query itself failed.
func (h *Handshake) RemoteVersion() int {
	return h.remote
}
