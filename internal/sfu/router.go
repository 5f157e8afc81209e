package sfu

import (
	"sync"

	"github.com/syncroom/server/internal/metrics"
)

// Router is a per-room SFU router, created lazily on first voice-capability
// request and cached under the room code. It owns the room-level producer
// table and the per-session peer table.
type Router struct {
	RoomCode string
	Worker   *Worker

	mu        sync.Mutex
	peers     map[string]*Peer     // sessionID -> Peer
	producers map[string]*Producer // producerID -> Producer
}

func newRouter(roomCode string, worker *Worker) *Router {
	metrics.SFURouters.Inc()
	return &Router{
		RoomCode:  roomCode,
		Worker:    worker,
		peers:     make(map[string]*Peer),
		producers: make(map[string]*Producer),
	}
}

func (r *Router) peer(sessionID string) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[sessionID]
}

func (r *Router) getOrCreatePeer(sessionID, identity string) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[sessionID]
	if !ok {
		p = newPeer(sessionID, identity)
		r.peers[sessionID] = p
	}
	return p
}

func (r *Router) registerProducer(p *Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[p.ID] = p
	metrics.SFUProducers.Inc()
}

// removeProducer deletes producerID and returns the removed Producer (nil
// if it was already gone), so callers can tell whether a voice producer
// just closed.
func (r *Router) removeProducer(producerID string) *Producer {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[producerID]
	if !ok {
		return nil
	}
	delete(r.producers, producerID)
	metrics.SFUProducers.Dec()
	return p
}

func (r *Router) producer(producerID string) *Producer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.producers[producerID]
}

// producersExcept lists producers other than excludeSessionID, optionally
// filtered by voice/non-voice. get_producers always excludes the caller's
// own producers; when type is omitted, voice producers are also excluded.
func (r *Router) producersExcept(excludeSessionID string, onlyType string, excludeVoice bool) []ProducerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ProducerInfo, 0, len(r.producers))
	for _, p := range r.producers {
		if p.SessionID == excludeSessionID {
			continue
		}
		if excludeVoice && p.Type == "voice" {
			continue
		}
		if onlyType != "" && p.Type != onlyType {
			continue
		}
		out = append(out, ProducerInfo{ProducerID: p.ID, Kind: p.Kind, Type: p.Type})
	}
	return out
}

// removePeer drops sessionID's Peer entry from the router's table (the
// caller is responsible for closing its transports first).
func (r *Router) removePeer(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, sessionID)
}

func (r *Router) isEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers) == 0
}

// close tears down the router's bookkeeping (its peers/transports are
// expected to already be closed by the caller) and updates metrics.
func (r *Router) close() {
	metrics.SFURouters.Dec()
}
