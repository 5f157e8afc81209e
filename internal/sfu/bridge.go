// Package sfu implements the SFU Bridge: a fixed pool of media workers,
// one router per room, and the client-facing produce/consume RPC surface.
// It is a separate subsystem from the Room Actor, invoked by the gateway's
// dispatcher for voice/video, and built on github.com/pion/webrtc/v3 — the concrete media
// library the pack supplies — standing in for a mediasoup-style worker.
package sfu

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/syncroom/server/internal/domain"
	"github.com/syncroom/server/internal/room"
)

// Config bundles the Bridge's tunables, grounded on config.Config's SFU
// fields.
type Config struct {
	WorkerCount     int
	AnnouncedIP     string
	Production      bool
	ProbeTimeout    time.Duration
	WorkerDeathWait time.Duration
	STUNURLs        []string
	TURNURLs        []string
	TURNUsername    string
	TURNPassword    string
}

// Bridge is the SFU Bridge.
type Bridge struct {
	cfg         Config
	broadcaster room.Broadcaster
	logger      *slog.Logger

	workers []*Worker

	mu      sync.Mutex
	routers map[string]*Router // roomCode -> Router

	announcedIP string
	iceServers  []ICEServer
}

// NewBridge constructs the worker pool and resolves the announced IP.
func NewBridge(cfg Config, broadcaster room.Broadcaster, logger *slog.Logger) *Bridge {
	logger = logger.With("component", "sfu.bridge")
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}

	workers := make([]*Worker, cfg.WorkerCount)
	for i := range workers {
		workers[i] = newWorker(i, logger)
	}

	announcedIP := resolveAnnouncedIP(cfg.AnnouncedIP, cfg.Production, cfg.ProbeTimeout)
	logger.Info("sfu bridge bootstrapped", "worker_count", cfg.WorkerCount, "announced_ip", announcedIP)

	iceServers := []ICEServer{{URLs: cfg.STUNURLs}}
	if len(cfg.TURNURLs) > 0 {
		iceServers = append(iceServers, ICEServer{URLs: cfg.TURNURLs, Username: cfg.TURNUsername, Credential: cfg.TURNPassword})
	}

	return &Bridge{
		cfg:         cfg,
		broadcaster: broadcaster,
		logger:      logger,
		workers:     workers,
		routers:     make(map[string]*Router),
		announcedIP: announcedIP,
		iceServers:  iceServers,
	}
}

// pickWorker returns the healthy worker with the fewest routers assigned
// (the lowest index wins a tie). Workers are not rotated round-robin.
func (b *Bridge) pickWorker() *Worker {
	var best *Worker
	for _, w := range b.workers {
		if !w.Healthy() {
			continue
		}
		if best == nil || w.load() < best.load() {
			best = w
		}
	}
	if best == nil {
		// Every worker's breaker is open: this is the fatal "worker death"
		// case. The process exits with a delay to let orchestration
		// restart it.
		b.logger.Error("no healthy sfu workers remain, exiting")
		go func() {
			time.Sleep(b.cfg.WorkerDeathWait)
			os.Exit(1)
		}()
		return b.workers[0]
	}
	return best
}

// getOrCreateRouter returns roomCode's router, creating it (and assigning
// it to a worker) on first use. Creation is serialized under b.mu.
func (b *Bridge) getOrCreateRouter(roomCode string) *Router {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r, ok := b.routers[roomCode]; ok {
		return r
	}
	worker := b.pickWorker()
	worker.incrLoad()
	r := newRouter(roomCode, worker)
	b.routers[roomCode] = r
	return r
}

func (b *Bridge) router(roomCode string) *Router {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.routers[roomCode]
}

// GetRouterCapabilities returns the fixed codec list for roomCode and
// emits existing-producers to the caller directly.
func (b *Bridge) GetRouterCapabilities(ctx context.Context, roomCode, sessionID string) (RTPCapabilities, error) {
	r := b.getOrCreateRouter(roomCode)
	existing := r.producersExcept(sessionID, "", false)
	b.broadcaster.Emit(ctx, sessionID, "existing-producers", existing)
	return defaultCapabilities, nil
}

// CreateTransport allocates a pion PeerConnection for sessionID and
// generates the SDP description the client must answer via
// connect_transport.
func (b *Bridge) CreateTransport(ctx context.Context, roomCode, sessionID, identity string, direction TransportDirection) (*TransportParams, error) {
	r := b.getOrCreateRouter(roomCode)
	peer := r.getOrCreatePeer(sessionID, identity)

	pcConfig := webrtc.Configuration{ICEServers: toWebRTCICEServers(b.iceServers)}
	pc, err := webrtc.NewPeerConnection(pcConfig)
	if err != nil {
		return nil, domain.NewError(domain.CodeInternal, "failed to create transport")
	}

	transport := &Transport{
		ID:        uuid.NewString(),
		Direction: direction,
		SessionID: sessionID,
		pc:        pc,
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
	}
	peer.addTransport(transport)

	var sdp string
	if direction == DirectionRecv {
		// The server originates media toward the client, so it must
		// create the initial offer. A full mediasoup deployment would
		// renegotiate per-consumer; here the transport-level offer
		// covers it.
		offer, err := pc.CreateOffer(nil)
		if err != nil {
			return nil, domain.NewError(domain.CodeInternal, "failed to create offer")
		}
		if err := pc.SetLocalDescription(offer); err != nil {
			return nil, domain.NewError(domain.CodeInternal, "failed to set local description")
		}
		sdp = offer.SDP
	}

	return &TransportParams{ID: transport.ID, ICEServers: b.iceServers, SDP: sdp}, nil
}

// ConnectTransport finalizes the transport's SDP exchange. dtlsParameters.sdp
// carries the client's offer (for a
// "send" transport) or answer (for a "recv" transport).
func (b *Bridge) ConnectTransport(ctx context.Context, roomCode, sessionID, transportID string, dtlsParameters map[string]interface{}) error {
	transport, err := b.lookupTransport(roomCode, sessionID, transportID)
	if err != nil {
		return err
	}

	sdp, _ := dtlsParameters["sdp"].(string)
	if sdp == "" {
		return domain.NewError(domain.CodeBadRequest, "missing sdp in dtlsParameters")
	}

	if transport.Direction == DirectionSend {
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
		if err := transport.pc.SetRemoteDescription(offer); err != nil {
			return domain.NewError(domain.CodeInternal, "failed to set remote description")
		}
		answer, err := transport.pc.CreateAnswer(nil)
		if err != nil {
			return domain.NewError(domain.CodeInternal, "failed to create answer")
		}
		if err := transport.pc.SetLocalDescription(answer); err != nil {
			return domain.NewError(domain.CodeInternal, "failed to set local description")
		}
		return nil
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := transport.pc.SetRemoteDescription(answer); err != nil {
		return domain.NewError(domain.CodeInternal, "failed to set remote description")
	}
	return nil
}

// Produce registers an outbound producer and broadcasts its availability.
// The returned bool reports whether the producer
// joined the room's voice channel, so the caller can keep the Room Actor's
// VoiceMembers set in sync.
func (b *Bridge) Produce(ctx context.Context, roomCode, sessionID, identity string, in ProduceInput) (string, bool, error) {
	r := b.router(roomCode)
	if r == nil {
		return "", false, domain.ErrRoomNotFound
	}
	transport, err := b.lookupTransport(roomCode, sessionID, in.TransportID)
	if err != nil {
		return "", false, err
	}

	capability := codecCapabilityFor(in.Kind)
	track, err := webrtc.NewTrackLocalStaticRTP(capability, in.Kind, sessionID)
	if err != nil {
		return "", false, domain.NewError(domain.CodeInternal, "failed to create producer track")
	}

	producerType := ""
	if isVoice(in.AppData) {
		producerType = "voice"
	}

	producer := &Producer{
		ID:          uuid.NewString(),
		Kind:        in.Kind,
		Type:        producerType,
		SessionID:   sessionID,
		Identity:    identity,
		TransportID: transport.ID,
		track:       track,
	}

	transport.mu.Lock()
	transport.producers[producer.ID] = producer
	transport.mu.Unlock()
	r.registerProducer(producer)

	event := "new_producer"
	if producerType == "voice" {
		event = "voice-new-producer"
	}
	b.broadcaster.Broadcast(ctx, roomCode, event, ProducerInfo{ProducerID: producer.ID, Kind: producer.Kind, Type: producer.Type}, sessionID)

	return producer.ID, producerType == "voice", nil
}

// Consume creates a consumer for producerID on transportID. Fails
// cannot_consume if the producer doesn't exist — the pion-
// backed router never refuses on codec-capability grounds since it only
// advertises the fixed codec list every client is required to support.
func (b *Bridge) Consume(ctx context.Context, roomCode, sessionID, transportID, producerID string) (*ConsumerParams, error) {
	r := b.router(roomCode)
	if r == nil {
		return nil, domain.ErrRoomNotFound
	}
	producer := r.producer(producerID)
	if producer == nil {
		return nil, domain.ErrCannotConsume
	}
	transport, err := b.lookupTransport(roomCode, sessionID, transportID)
	if err != nil {
		return nil, err
	}

	sender, err := transport.pc.AddTrack(producer.track)
	if err != nil {
		return nil, domain.ErrCannotConsume
	}

	consumer := &Consumer{
		ID:          uuid.NewString(),
		ProducerID:  producerID,
		SessionID:   sessionID,
		TransportID: transportID,
		Paused:      true, // consumer starts paused
		sender:      sender,
	}
	transport.mu.Lock()
	transport.consumers[consumer.ID] = consumer
	transport.mu.Unlock()

	return &ConsumerParams{ID: consumer.ID, ProducerID: producerID, Kind: producer.Kind}, nil
}

// ResumeConsumer unpauses a previously created consumer.
func (b *Bridge) ResumeConsumer(ctx context.Context, roomCode, sessionID, consumerID string) error {
	peer := b.findPeer(roomCode, sessionID)
	if peer == nil {
		return domain.ErrNotInCall
	}
	peer.mu.Lock()
	defer peer.mu.Unlock()
	for _, t := range peer.transports {
		t.mu.Lock()
		if c, ok := t.consumers[consumerID]; ok {
			c.Paused = false
			t.mu.Unlock()
			return nil
		}
		t.mu.Unlock()
	}
	return domain.NewError(domain.CodeNotFound, "consumer not found")
}

// GetProducers lists producers visible to sessionID.
func (b *Bridge) GetProducers(roomCode, sessionID, onlyType string) ([]ProducerInfo, error) {
	r := b.router(roomCode)
	if r == nil {
		return nil, domain.ErrRoomNotFound
	}
	excludeVoice := onlyType == ""
	return r.producersExcept(sessionID, onlyType, excludeVoice), nil
}

// VoiceDeparture names a room/identity pair whose voice producer closed
// during CleanupSession, so the caller can update the Room Actor's
// VoiceMembers set.
type VoiceDeparture struct {
	RoomCode string
	Identity string
}

// CleanupSession force-closes every transport/producer/consumer sessionID
// owns across every room, emitting producer_closed for each closed
// producer so listeners can tear down their consumers. It returns every
// room whose voice channel sessionID just left.
func (b *Bridge) CleanupSession(ctx context.Context, sessionID string) []VoiceDeparture {
	b.mu.Lock()
	routers := make([]*Router, 0, len(b.routers))
	for _, r := range b.routers {
		routers = append(routers, r)
	}
	b.mu.Unlock()

	var departures []VoiceDeparture
	for _, r := range routers {
		peer := r.peer(sessionID)
		if peer == nil {
			continue
		}
		closedProducerIDs := peer.closeAll()
		r.removePeer(sessionID)
		leftVoice := false
		for _, pid := range closedProducerIDs {
			if p := r.removeProducer(pid); p != nil && p.Type == "voice" {
				leftVoice = true
			}
			b.broadcaster.Broadcast(ctx, r.RoomCode, "producer_closed", map[string]interface{}{"producerId": pid}, "")
		}
		if leftVoice {
			departures = append(departures, VoiceDeparture{RoomCode: r.RoomCode, Identity: peer.Identity})
		}
	}
	return departures
}

// destroyRouterIfEmpty removes roomCode's router from the bridge if it has
// no peers left. Routers are otherwise kept until DestroyRouter runs for
// the destroyed room.
func (b *Bridge) destroyRouterIfEmpty(roomCode string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.routers[roomCode]
	if !ok || !r.isEmpty() {
		return
	}
	r.Worker.decrLoad()
	r.close()
	delete(b.routers, roomCode)
}

// DestroyRouter force-removes roomCode's router (called when the Room
// Actor itself is destroyed).
func (b *Bridge) DestroyRouter(roomCode string) {
	b.mu.Lock()
	r, ok := b.routers[roomCode]
	delete(b.routers, roomCode)
	b.mu.Unlock()
	if ok {
		r.Worker.decrLoad()
		r.close()
	}
}

func (b *Bridge) findPeer(roomCode, sessionID string) *Peer {
	r := b.router(roomCode)
	if r == nil {
		return nil
	}
	return r.peer(sessionID)
}

func (b *Bridge) lookupTransport(roomCode, sessionID, transportID string) (*Transport, error) {
	peer := b.findPeer(roomCode, sessionID)
	if peer == nil {
		return nil, domain.ErrNotInCall
	}
	t := peer.transport(transportID)
	if t == nil {
		return nil, domain.NewError(domain.CodeNotFound, "transport not found")
	}
	return t, nil
}

func toWebRTCICEServers(servers []ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		out = append(out, webrtc.ICEServer{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}
	return out
}

func codecCapabilityFor(kind string) webrtc.RTPCodecCapability {
	if kind == "audio" {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
}
