package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/syncroom/server/internal/auth"
	"github.com/syncroom/server/internal/domain"
	"github.com/syncroom/server/internal/pubsub"
	"github.com/syncroom/server/internal/registry"
	"github.com/syncroom/server/internal/room"
	"github.com/syncroom/server/internal/sfu"
)

// requestTimeout bounds every request/response event.
const requestTimeout = 8 * time.Second
const sfuRequestTimeout = 10 * time.Second

// Dispatcher routes inbound frames to the Room Registry/Actor and SFU
// Bridge, and wires each client's outbound subscriptions, generalizing the
// teacher's Hub.HandleMessage switch (internal/websocket/hub.go) from a
// fixed chat-event set to SyncRoom's full event surface.
type Dispatcher struct {
	registry *registry.Registry
	bridge   *sfu.Bridge
	resolver auth.IdentityResolver
	ps       pubsub.PubSub
	logger   *slog.Logger
}

// NewDispatcher wires the gateway to its three collaborators.
func NewDispatcher(reg *registry.Registry, bridge *sfu.Bridge, resolver auth.IdentityResolver, ps pubsub.PubSub, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: reg, bridge: bridge, resolver: resolver, ps: ps, logger: logger.With("component", "gateway.dispatcher")}
}

// OnConnect subscribes the new client to its own session topic so direct
// emits (kicked, screen-share relays, existing-producers) can reach it
// before it has joined any room.
func (d *Dispatcher) OnConnect(ctx context.Context, c *Client) {
	sub, err := d.ps.Subscribe(ctx, pubsub.Topics.User(c.SessionID()), d.busHandler(c))
	if err != nil {
		d.logger.Error("subscribe user topic failed", "session_id", c.SessionID(), "error", err)
		return
	}
	c.setUserSub(sub)
}

// OnDisconnect tears down the session's room membership, SFU state, and
// bus subscriptions.
func (d *Dispatcher) OnDisconnect(c *Client) {
	ctx := context.Background()
	if err := d.registry.LeaveRoom(ctx, c.SessionID()); err != nil {
		d.logger.Warn("leave room on disconnect", "session_id", c.SessionID(), "error", err)
	}
	d.leaveVoiceChannels(ctx, d.bridge.CleanupSession(ctx, c.SessionID()))
	c.closeSubscriptions()
}

// leaveVoiceChannels removes each departed identity from its room's
// VoiceMembers set, mirroring a voice producer's closure back into the
// Room Actor's state.
func (d *Dispatcher) leaveVoiceChannels(ctx context.Context, departures []sfu.VoiceDeparture) {
	for _, dep := range departures {
		if actor := d.registry.Lookup(dep.RoomCode); actor != nil {
			_ = actor.LeaveVoice(ctx, dep.Identity)
		}
	}
}

// busHandler adapts a pubsub.Message (wrapped in the Room Actor's
// envelope, see internal/room/broadcast.go) into an outbound client frame,
// applying the exclude filter broadcasts carry.
func (d *Dispatcher) busHandler(c *Client) pubsub.Handler {
	return func(ctx context.Context, msg *pubsub.Message) {
		var env busEnvelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			d.logger.Error("unmarshal bus envelope", "error", err)
			return
		}
		if env.Exclude != "" && env.Exclude == c.SessionID() {
			return
		}
		c.writeJSON(outboundEnvelope{Type: env.Event, Payload: json.RawMessage(env.Payload)})
	}
}

// Dispatch routes one inbound frame. It never panics out to the caller:
// handler panics are recovered and surfaced as an internal ack error,
// generalizing the teacher's recoverMiddleware from HTTP to the event loop.
func (d *Dispatcher) Dispatch(c *Client, env inboundEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic handling event", "type", env.Type, "recover", r)
			if env.RequestID != "" {
				c.ackError(env.RequestID, "internal", "internal error")
			}
		}
	}()

	if env.Type != EventIdentify && !c.authenticated() {
		if env.RequestID != "" {
			c.ackError(env.RequestID, "forbidden", "identify first")
		}
		return
	}

	timeout := requestTimeout
	if isSFUEvent(env.Type) {
		timeout = sfuRequestTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	switch env.Type {
	case EventIdentify:
		d.handleIdentify(ctx, c, env)
	case EventCreateRoom:
		d.handleCreateRoom(ctx, c, env)
	case EventJoinRoom:
		d.handleJoinRoom(ctx, c, env)
	case EventLeaveRoom:
		d.handleLeaveRoom(c)
	case EventSendMessage:
		d.handleSendMessage(ctx, c, env)
	case EventEditMessage:
		d.handleEditMessage(ctx, c, env)
	case EventDeleteMessage:
		d.handleDeleteMessage(ctx, c, env)
	case EventAddMessageReaction:
		d.handleAddReaction(ctx, c, env)
	case EventSendReaction:
		d.handleSendReaction(ctx, c, env)
	case EventUpdatePlayback:
		d.handleUpdatePlayback(ctx, c, env)
	case EventSyncRequest:
		d.handleSyncRequest(ctx, c, env)
	case EventToggleLock:
		d.handleToggleLock(ctx, c, env)
	case EventTransferHost:
		d.handleTransferHost(ctx, c, env)
	case EventKickUser:
		d.handleKickUser(ctx, c, env)
	case EventScreenShareStart:
		d.handleScreenShareStart(ctx, c, env)
	case EventScreenShareStop:
		d.handleScreenShareStop(ctx, c, env)
	case EventScreenShareReady:
		d.handleScreenShareReady(ctx, c, env)
	case EventScreenShareOffer:
		d.handleScreenShareSignal(ctx, c, env, EventScreenShareOffer)
	case EventScreenShareAnswer:
		d.handleScreenShareSignal(ctx, c, env, EventScreenShareAnswer)
	case EventScreenShareICE:
		d.handleScreenShareICE(ctx, c, env)
	case EventGetRouterCapabilities:
		d.handleGetRouterCapabilities(ctx, c, env)
	case EventCreateTransport:
		d.handleCreateTransport(ctx, c, env)
	case EventConnectTransport:
		d.handleConnectTransport(ctx, c, env)
	case EventProduce:
		d.handleProduce(ctx, c, env)
	case EventConsume:
		d.handleConsume(ctx, c, env)
	case EventResumeConsumer:
		d.handleResumeConsumer(ctx, c, env)
	case EventGetProducers:
		d.handleGetProducers(c, env)
	default:
		if env.RequestID != "" {
			c.ackError(env.RequestID, "bad_request", "unknown event: "+env.Type)
		} else {
			d.logger.Warn("dropped unknown fire-and-forget event", "type", env.Type)
		}
	}
}

// isSFUEvent reports whether an event belongs to the SFU RPC surface,
// which gets the 10s timeout (vs. 8s for everything else, including join).
func isSFUEvent(eventType string) bool {
	switch eventType {
	case EventGetRouterCapabilities, EventCreateTransport, EventConnectTransport,
		EventProduce, EventConsume, EventResumeConsumer, EventGetProducers:
		return true
	default:
		return false
	}
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, errors.New("missing payload")
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

func (d *Dispatcher) replyErr(c *Client, reqID string, err error) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		c.ackError(reqID, string(derr.Code), derr.Message)
		return
	}
	c.ackError(reqID, "internal", "internal error")
}

func (d *Dispatcher) handleIdentify(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[identifyPayload](env.Payload)
	if err != nil {
		c.ackError(env.RequestID, "bad_request", "malformed identify payload")
		return
	}
	identity, err := d.resolver.Resolve(ctx, in.Token)
	if err != nil {
		c.ackError(env.RequestID, "forbidden", "invalid token")
		return
	}
	c.setIdentity(identity.Identity, identity.DisplayName)
	if env.RequestID != "" {
		c.ack(env.RequestID, map[string]interface{}{"identity": identity.Identity, "name": identity.DisplayName})
	}
}

func (d *Dispatcher) handleCreateRoom(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[createRoomPayload](env.Payload)
	if err != nil {
		c.ackError(env.RequestID, "bad_request", "malformed create_room payload")
		return
	}
	code, snap, err := d.registry.CreateRoom(ctx, registry.CreateRoomInput{
		Identity:  c.Identity(),
		Name:      in.Name,
		Avatar:    in.Avatar,
		RoomName:  in.RoomName,
		Kind:      domain.Kind(in.Kind),
		Privacy:   domain.Privacy(in.Privacy),
		SessionID: c.SessionID(),
	})
	if err != nil {
		d.replyErr(c, env.RequestID, err)
		return
	}
	c.setProfile(in.Name, in.Avatar)
	d.subscribeRoom(ctx, c, code)
	c.ack(env.RequestID, map[string]interface{}{"success": true, "roomCode": code, "room": snap})
}

func (d *Dispatcher) handleJoinRoom(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[joinRoomPayload](env.Payload)
	if err != nil {
		c.ackError(env.RequestID, "bad_request", "malformed join_room payload")
		return
	}
	snap, err := d.registry.JoinRoom(ctx, registry.JoinRoomInput{
		RoomCode:  in.RoomCode,
		Identity:  c.Identity(),
		Name:      in.Name,
		Avatar:    in.Avatar,
		SessionID: c.SessionID(),
	})
	if err != nil {
		d.replyErr(c, env.RequestID, err)
		return
	}
	c.setProfile(in.Name, in.Avatar)
	d.subscribeRoom(ctx, c, in.RoomCode)
	c.ack(env.RequestID, map[string]interface{}{"success": true, "room": snap})
}

func (d *Dispatcher) subscribeRoom(ctx context.Context, c *Client, roomCode string) {
	sub, err := d.ps.Subscribe(ctx, pubsub.Topics.Room(roomCode), d.busHandler(c))
	if err != nil {
		d.logger.Error("subscribe room topic failed", "room_code", roomCode, "error", err)
		return
	}
	c.setRoomSub(sub)
	c.setRoomCode(roomCode)
}

func (d *Dispatcher) handleLeaveRoom(c *Client) {
	ctx := context.Background()
	_ = d.registry.LeaveRoom(ctx, c.SessionID())
	d.leaveVoiceChannels(ctx, d.bridge.CleanupSession(ctx, c.SessionID()))
	c.setRoomSub(nil)
	c.setRoomCode("")
}

func (d *Dispatcher) actorFor(c *Client, roomCode string) *room.Actor {
	return d.registry.Lookup(roomCode)
}

func (d *Dispatcher) handleSendMessage(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[sendMessagePayload](env.Payload)
	if err != nil {
		return
	}
	actor := d.actorFor(c, in.RoomCode)
	if actor == nil {
		return
	}
	_ = actor.SendMessage(ctx, c.Identity(), c.displayName(), c.avatarURL(), in.Content, in.ReplyTo)
}

func (d *Dispatcher) handleEditMessage(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[editMessagePayload](env.Payload)
	if err != nil {
		return
	}
	if actor := d.actorFor(c, in.RoomCode); actor != nil {
		_ = actor.EditMessage(ctx, c.Identity(), in.MessageID, in.Content)
	}
}

func (d *Dispatcher) handleDeleteMessage(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[deleteMessagePayload](env.Payload)
	if err != nil {
		return
	}
	if actor := d.actorFor(c, in.RoomCode); actor != nil {
		_ = actor.DeleteMessage(ctx, c.Identity(), in.MessageID)
	}
}

func (d *Dispatcher) handleAddReaction(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[addReactionPayload](env.Payload)
	if err != nil {
		return
	}
	if actor := d.actorFor(c, in.RoomCode); actor != nil {
		_ = actor.AddMessageReaction(ctx, c.Identity(), in.MessageID, in.Emoji)
	}
}

func (d *Dispatcher) handleSendReaction(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[sendReactionPayload](env.Payload)
	if err != nil {
		return
	}
	if actor := d.actorFor(c, in.RoomCode); actor != nil {
		_ = actor.SendReaction(ctx, c.Identity(), c.displayName(), in.Emoji)
	}
}

func (d *Dispatcher) handleUpdatePlayback(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[updatePlaybackPayload](env.Payload)
	if err != nil {
		return
	}
	actor := d.actorFor(c, in.RoomCode)
	if actor == nil {
		return
	}
	var media *domain.Media
	if in.Media != nil {
		media = &domain.Media{URL: in.Media.URL, Kind: in.Media.Kind, Name: in.Media.Name}
	}
	_ = actor.UpdatePlayback(ctx, c.Identity(), room.UpdatePlaybackInput{
		Action:      room.PlaybackAction(in.Action),
		IsPlaying:   in.IsPlaying,
		CurrentTime: in.CurrentTime,
		Media:       media,
	})
}

func (d *Dispatcher) handleSyncRequest(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[roomScopedPayload](env.Payload)
	if err != nil {
		c.ackError(env.RequestID, "bad_request", "malformed sync_request payload")
		return
	}
	if !c.syncLimiter.Allow() {
		c.ackError(env.RequestID, "timeout", "rate limited")
		return
	}
	actor := d.actorFor(c, in.RoomCode)
	if actor == nil {
		c.ackError(env.RequestID, "not_found", "room not found")
		return
	}
	state, err := actor.SyncRequest(ctx)
	if err != nil {
		d.replyErr(c, env.RequestID, err)
		return
	}
	c.ack(env.RequestID, map[string]interface{}{"success": true, "state": map[string]interface{}{
		"isPlaying":   state.IsPlaying,
		"currentTime": state.CurrentTime,
	}})
}

func (d *Dispatcher) handleToggleLock(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[roomScopedPayload](env.Payload)
	if err != nil {
		return
	}
	if actor := d.actorFor(c, in.RoomCode); actor != nil {
		_ = actor.ToggleLock(ctx, c.Identity())
	}
}

func (d *Dispatcher) handleTransferHost(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[transferHostPayload](env.Payload)
	if err != nil {
		return
	}
	if actor := d.actorFor(c, in.RoomCode); actor != nil {
		_ = actor.TransferHost(ctx, c.Identity(), in.Target)
	}
}

func (d *Dispatcher) handleKickUser(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[kickUserPayload](env.Payload)
	if err != nil {
		return
	}
	if actor := d.actorFor(c, in.RoomCode); actor != nil {
		_ = actor.Kick(ctx, c.Identity(), in.Target)
	}
}

func (d *Dispatcher) handleScreenShareStart(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[roomScopedPayload](env.Payload)
	if err != nil {
		return
	}
	if actor := d.actorFor(c, in.RoomCode); actor != nil {
		_ = actor.ScreenShareStart(ctx, c.SessionID())
	}
}

func (d *Dispatcher) handleScreenShareStop(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[roomScopedPayload](env.Payload)
	if err != nil {
		return
	}
	if actor := d.actorFor(c, in.RoomCode); actor != nil {
		_ = actor.ScreenShareStop(ctx, c.SessionID())
	}
}

func (d *Dispatcher) handleScreenShareReady(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[screenShareSignalPayload](env.Payload)
	if err != nil {
		return
	}
	if actor := d.actorFor(c, in.RoomCode); actor != nil {
		_ = actor.ScreenShareReady(ctx, c.SessionID(), in.To)
	}
}

func (d *Dispatcher) handleScreenShareSignal(ctx context.Context, c *Client, env inboundEnvelope, eventOut string) {
	in, err := decode[screenShareSignalPayload](env.Payload)
	if err != nil {
		return
	}
	actor := d.actorFor(c, in.RoomCode)
	if actor == nil {
		return
	}
	payload := map[string]interface{}{}
	if in.Offer != nil {
		payload["offer"] = in.Offer
	}
	if in.Answer != nil {
		payload["answer"] = in.Answer
	}
	_ = actor.RelaySDP(ctx, eventOut, c.SessionID(), in.To, payload)
}

func (d *Dispatcher) handleScreenShareICE(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[screenShareSignalPayload](env.Payload)
	if err != nil {
		return
	}
	actor := d.actorFor(c, in.RoomCode)
	if actor == nil {
		return
	}
	_ = actor.RelayICE(ctx, c.SessionID(), in.To, map[string]interface{}{"candidate": in.Candidate})
}

func (d *Dispatcher) handleGetRouterCapabilities(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[roomScopedPayload](env.Payload)
	if err != nil {
		c.ackError(env.RequestID, "bad_request", "malformed payload")
		return
	}
	caps, err := d.bridge.GetRouterCapabilities(ctx, in.RoomCode, c.SessionID())
	if err != nil {
		d.replyErr(c, env.RequestID, err)
		return
	}
	c.ack(env.RequestID, caps)
}

func (d *Dispatcher) handleCreateTransport(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[createTransportPayload](env.Payload)
	if err != nil {
		c.ackError(env.RequestID, "bad_request", "malformed payload")
		return
	}
	params, err := d.bridge.CreateTransport(ctx, in.RoomCode, c.SessionID(), c.Identity(), sfu.TransportDirection(in.Direction))
	if err != nil {
		d.replyErr(c, env.RequestID, err)
		return
	}
	c.ack(env.RequestID, params)
}

func (d *Dispatcher) handleConnectTransport(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[connectTransportPayload](env.Payload)
	if err != nil {
		c.ackError(env.RequestID, "bad_request", "malformed payload")
		return
	}
	if err := d.bridge.ConnectTransport(ctx, in.RoomCode, c.SessionID(), in.TransportID, in.DtlsParameters); err != nil {
		d.replyErr(c, env.RequestID, err)
		return
	}
	c.ack(env.RequestID, map[string]interface{}{"success": true})
}

func (d *Dispatcher) handleProduce(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[producePayload](env.Payload)
	if err != nil {
		c.ackError(env.RequestID, "bad_request", "malformed payload")
		return
	}
	id, isVoice, err := d.bridge.Produce(ctx, in.RoomCode, c.SessionID(), c.Identity(), sfu.ProduceInput{
		TransportID: in.TransportID,
		Kind:        in.Kind,
		SDP:         in.SDP,
		AppData:     in.AppData,
	})
	if err != nil {
		d.replyErr(c, env.RequestID, err)
		return
	}
	if isVoice {
		if actor := d.actorFor(c, in.RoomCode); actor != nil {
			_ = actor.JoinVoice(ctx, c.Identity())
		}
	}
	c.ack(env.RequestID, map[string]interface{}{"id": id})
}

func (d *Dispatcher) handleConsume(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[consumePayload](env.Payload)
	if err != nil {
		c.ackError(env.RequestID, "bad_request", "malformed payload")
		return
	}
	params, err := d.bridge.Consume(ctx, in.RoomCode, c.SessionID(), in.TransportID, in.ProducerID)
	if err != nil {
		d.replyErr(c, env.RequestID, err)
		return
	}
	c.ack(env.RequestID, params)
}

func (d *Dispatcher) handleResumeConsumer(ctx context.Context, c *Client, env inboundEnvelope) {
	in, err := decode[resumeConsumerPayload](env.Payload)
	if err != nil {
		c.ackError(env.RequestID, "bad_request", "malformed payload")
		return
	}
	if err := d.bridge.ResumeConsumer(ctx, in.RoomCode, c.SessionID(), in.ConsumerID); err != nil {
		d.replyErr(c, env.RequestID, err)
		return
	}
	c.ack(env.RequestID, map[string]interface{}{"success": true})
}

func (d *Dispatcher) handleGetProducers(c *Client, env inboundEnvelope) {
	in, err := decode[getProducersPayload](env.Payload)
	if err != nil {
		c.ackError(env.RequestID, "bad_request", "malformed payload")
		return
	}
	list, err := d.bridge.GetProducers(in.RoomCode, c.SessionID(), in.Type)
	if err != nil {
		d.replyErr(c, env.RequestID, err)
		return
	}
	c.ack(env.RequestID, list)
}
