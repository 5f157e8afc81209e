package sfu

import (
	"sync"

	"github.com/pion/webrtc/v3"
)

// Transport wraps one pion PeerConnection per direction for a given
// session, standing in for mediasoup's WebRtcTransport. The
// create/connect/produce/consume surface is implemented here on top of a
// normal SDP offer/answer exchange rather than mediasoup's ICE/DTLS
// parameter RPCs, since pion — the concrete media library available —
// exposes PeerConnection-level negotiation, not a bare transport object.
type Transport struct {
	ID        string
	Direction TransportDirection
	SessionID string

	pc *webrtc.PeerConnection

	mu        sync.Mutex
	producers map[string]*Producer
	consumers map[string]*Consumer
}

// Producer is an outbound track a session is sending into the router.
type Producer struct {
	ID          string
	Kind        string
	Type        string // "voice" or "" (screen/camera)
	SessionID   string
	Identity    string
	TransportID string
	track       *webrtc.TrackLocalStaticRTP
}

// Consumer is an inbound track a session receives from the router.
type Consumer struct {
	ID          string
	ProducerID  string
	SessionID   string
	TransportID string
	Paused      bool
	sender      *webrtc.RTPSender
}

// Peer holds every transport a session has opened in one room.
type Peer struct {
	SessionID string
	Identity  string

	mu         sync.Mutex
	transports map[string]*Transport
}

func newPeer(sessionID, identity string) *Peer {
	return &Peer{
		SessionID:  sessionID,
		Identity:   identity,
		transports: make(map[string]*Transport),
	}
}

func (p *Peer) addTransport(t *Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transports[t.ID] = t
}

func (p *Peer) transport(id string) *Transport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transports[id]
}

// closeAll force-closes every transport (and with it every producer and
// consumer) this peer owns, returning the producer ids that were closed so
// the caller can emit producer_closed to the owning room.
func (p *Peer) closeAll() []string {
	p.mu.Lock()
	transports := make([]*Transport, 0, len(p.transports))
	for _, t := range p.transports {
		transports = append(transports, t)
	}
	p.transports = make(map[string]*Transport)
	p.mu.Unlock()

	var closedProducerIDs []string
	for _, t := range transports {
		t.mu.Lock()
		for id := range t.producers {
			closedProducerIDs = append(closedProducerIDs, id)
		}
		t.mu.Unlock()
		_ = t.pc.Close()
	}
	return closedProducerIDs
}
