package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncroom/server/internal/pubsub"
	"github.com/syncroom/server/internal/registry"
	"github.com/syncroom/server/internal/room"
	"github.com/syncroom/server/internal/sfu"
)

func testDispatcher(t *testing.T) (*Dispatcher, pubsub.PubSub) {
	ps := pubsub.NewMemoryPubSub()
	broadcaster := room.NewPubSubBroadcaster(ps)
	logger := testLogger()
	reg := registry.New(room.Config{
		ReconnectGrace: 20 * time.Millisecond,
		LeaveGrace:     20 * time.Millisecond,
		IdleTimeout:    time.Hour,
		ChatBound:      200,
	}, broadcaster, room.RealClock, logger, 100)
	bridge := sfu.NewBridge(sfu.Config{WorkerCount: 1}, broadcaster, logger)
	return NewDispatcher(reg, bridge, fakeResolver{}, ps, logger), ps
}

func env(eventType, reqID string, payload interface{}) inboundEnvelope {
	raw, _ := json.Marshal(payload)
	return inboundEnvelope{Type: eventType, RequestID: reqID, Payload: raw}
}

func decodeOutbound(t *testing.T, b []byte) outboundEnvelope {
	var out outboundEnvelope
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestDispatch_RejectsEventsBeforeIdentify(t *testing.T) {
	d, _ := testDispatcher(t)
	c := newTestClient("sess-1")

	d.Dispatch(c, env(EventCreateRoom, "r1", createRoomPayload{Name: "alice", RoomName: "movie night"}))

	b, ok := drainSend(c, time.Second)
	require.True(t, ok)
	out := decodeOutbound(t, b)
	assert.False(t, *out.OK)
	assert.Equal(t, "forbidden", out.Error.Code)
}

func TestDispatch_IdentifyThenCreateRoom(t *testing.T) {
	d, _ := testDispatcher(t)
	c := newTestClient("sess-1")
	d.OnConnect(context.Background(), c)

	d.Dispatch(c, env(EventIdentify, "id1", identifyPayload{Token: "alice"}))
	b, ok := drainSend(c, time.Second)
	require.True(t, ok)
	out := decodeOutbound(t, b)
	require.NotNil(t, out.OK)
	assert.True(t, *out.OK)

	d.Dispatch(c, env(EventCreateRoom, "cr1", createRoomPayload{Name: "alice", RoomName: "movie night", Kind: "video", Privacy: "public"}))
	b, ok = drainSend(c, time.Second)
	require.True(t, ok)
	out = decodeOutbound(t, b)
	require.NotNil(t, out.OK)
	assert.True(t, *out.OK)

	payload, ok := out.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, payload["roomCode"])
}

// TestDispatch_JoinBroadcastsUserJoined covers the wire-level path of a
// scenario-style join: a second client joining the room receives a
// user_joined broadcast on its room subscription.
func TestDispatch_JoinBroadcastsUserJoined(t *testing.T) {
	d, _ := testDispatcher(t)
	host := newTestClient("sess-host")
	d.OnConnect(context.Background(), host)
	d.Dispatch(host, env(EventIdentify, "i1", identifyPayload{Token: "host"}))
	_, _ = drainSend(host, time.Second)

	d.Dispatch(host, env(EventCreateRoom, "cr1", createRoomPayload{Name: "host", RoomName: "movie night"}))
	b, ok := drainSend(host, time.Second)
	require.True(t, ok)
	createAck := decodeOutbound(t, b)
	roomCode := createAck.Payload.(map[string]interface{})["roomCode"].(string)

	member := newTestClient("sess-member")
	d.OnConnect(context.Background(), member)
	d.Dispatch(member, env(EventIdentify, "i2", identifyPayload{Token: "member"}))
	_, _ = drainSend(member, time.Second)

	d.Dispatch(member, env(EventJoinRoom, "j1", joinRoomPayload{RoomCode: roomCode, Name: "member"}))
	_, ok = drainSend(member, time.Second)
	require.True(t, ok) // join ack

	// The join publishes the member's "joined" system chat message and the
	// user_joined event; the host may receive the two in either order.
	var types []string
	for i := 0; i < 2; i++ {
		b, ok = drainSend(host, 2*time.Second)
		require.True(t, ok, "host should receive new_message and user_joined broadcasts")
		types = append(types, decodeOutbound(t, b).Type)
	}
	assert.ElementsMatch(t, []string{"new_message", "user_joined"}, types)
}

// TestScreenShare_FullNegotiationThroughDispatcher covers scenario S5 at
// the wire level: start, ready, request_offer, offer, answer, and ICE in
// both directions with `from` rewritten.
func TestScreenShare_FullNegotiationThroughDispatcher(t *testing.T) {
	d, _ := testDispatcher(t)

	host := newTestClient("sess-host")
	d.OnConnect(context.Background(), host)
	d.Dispatch(host, env(EventIdentify, "i1", identifyPayload{Token: "host"}))
	_, _ = drainSend(host, time.Second)
	d.Dispatch(host, env(EventCreateRoom, "cr1", createRoomPayload{Name: "host", RoomName: "movie night"}))
	b, _ := drainSend(host, time.Second)
	roomCode := decodeOutbound(t, b).Payload.(map[string]interface{})["roomCode"].(string)

	member := newTestClient("sess-member")
	d.OnConnect(context.Background(), member)
	d.Dispatch(member, env(EventIdentify, "i2", identifyPayload{Token: "member"}))
	_, _ = drainSend(member, time.Second)
	d.Dispatch(member, env(EventJoinRoom, "j1", joinRoomPayload{RoomCode: roomCode, Name: "member"}))
	_, _ = drainSend(member, time.Second)
	_, _ = drainSend(host, time.Second) // join system message (new_message) to host
	_, _ = drainSend(host, time.Second) // user_joined broadcast to host

	// host starts sharing
	d.Dispatch(host, env(EventScreenShareStart, "", roomScopedPayload{RoomCode: roomCode}))
	b, ok := drainSend(member, time.Second)
	require.True(t, ok)
	assert.Equal(t, "screen_share_started", decodeOutbound(t, b).Type)

	// member signals readiness
	d.Dispatch(member, env(EventScreenShareReady, "", screenShareSignalPayload{RoomCode: roomCode, To: host.SessionID()}))
	b, ok = drainSend(host, time.Second)
	require.True(t, ok)
	reqOffer := decodeOutbound(t, b)
	assert.Equal(t, "screen_share_request_offer", reqOffer.Type)

	// host sends the offer to the member
	d.Dispatch(host, env(EventScreenShareOffer, "", screenShareSignalPayload{
		RoomCode: roomCode, To: member.SessionID(), Offer: map[string]interface{}{"sdp": "offer-sdp"},
	}))
	b, ok = drainSend(member, time.Second)
	require.True(t, ok)
	offerOut := decodeOutbound(t, b)
	assert.Equal(t, "screen_share_offer", offerOut.Type)
	offerPayload := offerOut.Payload.(map[string]interface{})
	assert.Equal(t, host.SessionID(), offerPayload["from"])

	// member answers
	d.Dispatch(member, env(EventScreenShareAnswer, "", screenShareSignalPayload{
		RoomCode: roomCode, To: host.SessionID(), Answer: map[string]interface{}{"sdp": "answer-sdp"},
	}))
	b, ok = drainSend(host, time.Second)
	require.True(t, ok)
	answerOut := decodeOutbound(t, b)
	assert.Equal(t, "screen_share_answer", answerOut.Type)
	assert.Equal(t, member.SessionID(), answerOut.Payload.(map[string]interface{})["from"])

	// ICE both directions
	d.Dispatch(host, env(EventScreenShareICE, "", screenShareSignalPayload{
		RoomCode: roomCode, To: member.SessionID(), Candidate: map[string]interface{}{"candidate": "c1"},
	}))
	b, ok = drainSend(member, time.Second)
	require.True(t, ok)
	assert.Equal(t, host.SessionID(), decodeOutbound(t, b).Payload.(map[string]interface{})["from"])

	d.Dispatch(member, env(EventScreenShareICE, "", screenShareSignalPayload{
		RoomCode: roomCode, To: host.SessionID(), Candidate: map[string]interface{}{"candidate": "c2"},
	}))
	b, ok = drainSend(host, time.Second)
	require.True(t, ok)
	assert.Equal(t, member.SessionID(), decodeOutbound(t, b).Payload.(map[string]interface{})["from"])
}

func TestDispatch_UnknownEventAcksBadRequest(t *testing.T) {
	d, _ := testDispatcher(t)
	c := newTestClient("sess-1")
	d.Dispatch(c, env(EventIdentify, "i1", identifyPayload{Token: "alice"}))
	_, _ = drainSend(c, time.Second)

	d.Dispatch(c, env("not_a_real_event", "r1", map[string]interface{}{}))
	b, ok := drainSend(c, time.Second)
	require.True(t, ok)
	out := decodeOutbound(t, b)
	assert.False(t, *out.OK)
	assert.Equal(t, "bad_request", out.Error.Code)
}
