package sfu

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBridge(t *testing.T) (*Bridge, *recordingBroadcaster) {
	b := &recordingBroadcaster{}
	bridge := NewBridge(Config{
		WorkerCount:     2,
		Production:      false,
		ProbeTimeout:    time.Second,
		WorkerDeathWait: time.Second,
		STUNURLs:        []string{"stun:stun.l.google.com:19302"},
	}, b, testLogger())
	t.Cleanup(func() {
		bridge.mu.Lock()
		codes := make([]string, 0, len(bridge.routers))
		for code := range bridge.routers {
			codes = append(codes, code)
		}
		bridge.mu.Unlock()
		for _, c := range codes {
			bridge.DestroyRouter(c)
		}
	})
	return bridge, b
}

func TestGetRouterCapabilities_ReturnsFixedCodecsAndEmitsExisting(t *testing.T) {
	bridge, b := testBridge(t)
	ctx := context.Background()

	caps, err := bridge.GetRouterCapabilities(ctx, "ROOM01", "sess-1")
	require.NoError(t, err)
	assert.Len(t, caps.Codecs, 2)

	emits := b.ofType("existing-producers")
	require.Len(t, emits, 1)
	assert.Equal(t, "sess-1", emits[0].sessionID)
}

func TestProduce_BroadcastsNewProducerExcludingSender(t *testing.T) {
	bridge, b := testBridge(t)
	ctx := context.Background()

	params, err := bridge.CreateTransport(ctx, "ROOM01", "sess-1", "alice", DirectionSend)
	require.NoError(t, err)
	require.NotEmpty(t, params.ID)

	producerID, voice, err := bridge.Produce(ctx, "ROOM01", "sess-1", "alice", ProduceInput{
		TransportID: params.ID,
		Kind:        "video",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, producerID)
	assert.False(t, voice)

	events := b.ofType("new_producer")
	require.Len(t, events, 1)
	assert.Equal(t, "sess-1", events[0].exclude)
}

func TestProduce_VoiceProducerUsesDedicatedEvent(t *testing.T) {
	bridge, b := testBridge(t)
	ctx := context.Background()

	params, err := bridge.CreateTransport(ctx, "ROOM01", "sess-1", "alice", DirectionSend)
	require.NoError(t, err)

	_, voice, err := bridge.Produce(ctx, "ROOM01", "sess-1", "alice", ProduceInput{
		TransportID: params.ID,
		Kind:        "audio",
		AppData:     map[string]interface{}{"type": "voice"},
	})
	require.NoError(t, err)
	assert.True(t, voice)

	assert.Len(t, b.ofType("voice-new-producer"), 1)
	assert.Len(t, b.ofType("new_producer"), 0)
}

// TestGetProducers_ExcludesOwnAndVoiceByDefault covers spec's get_producers
// filtering: the caller's own producers are always excluded, and voice
// producers are excluded unless explicitly requested by type.
func TestGetProducers_ExcludesOwnAndVoiceByDefault(t *testing.T) {
	bridge, _ := testBridge(t)
	ctx := context.Background()

	selfParams, err := bridge.CreateTransport(ctx, "ROOM01", "sess-1", "alice", DirectionSend)
	require.NoError(t, err)
	_, _, err = bridge.Produce(ctx, "ROOM01", "sess-1", "alice", ProduceInput{TransportID: selfParams.ID, Kind: "video"})
	require.NoError(t, err)

	otherVideoParams, err := bridge.CreateTransport(ctx, "ROOM01", "sess-2", "bob", DirectionSend)
	require.NoError(t, err)
	_, _, err = bridge.Produce(ctx, "ROOM01", "sess-2", "bob", ProduceInput{TransportID: otherVideoParams.ID, Kind: "video"})
	require.NoError(t, err)

	otherVoiceParams, err := bridge.CreateTransport(ctx, "ROOM01", "sess-2", "bob", DirectionSend)
	require.NoError(t, err)
	_, _, err = bridge.Produce(ctx, "ROOM01", "sess-2", "bob", ProduceInput{
		TransportID: otherVoiceParams.ID,
		Kind:        "audio",
		AppData:     map[string]interface{}{"type": "voice"},
	})
	require.NoError(t, err)

	list, err := bridge.GetProducers("ROOM01", "sess-1", "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "video", list[0].Kind)

	voiceList, err := bridge.GetProducers("ROOM01", "sess-1", "voice")
	require.NoError(t, err)
	require.Len(t, voiceList, 1)
	assert.Equal(t, "voice", voiceList[0].Type)
}

// TestCleanupSession_ClosesTransportsAndBroadcastsProducerClosed covers
// property 5 / scenario S6: a disconnecting session's producers are torn
// down and every remaining participant is told via producer_closed.
func TestCleanupSession_ClosesTransportsAndBroadcastsProducerClosed(t *testing.T) {
	bridge, b := testBridge(t)
	ctx := context.Background()

	params, err := bridge.CreateTransport(ctx, "ROOM01", "sess-1", "alice", DirectionSend)
	require.NoError(t, err)
	producerID, _, err := bridge.Produce(ctx, "ROOM01", "sess-1", "alice", ProduceInput{TransportID: params.ID, Kind: "video"})
	require.NoError(t, err)

	departures := bridge.CleanupSession(ctx, "sess-1")
	assert.Empty(t, departures, "non-voice producer shouldn't report a voice departure")

	closed := b.ofType("producer_closed")
	require.Len(t, closed, 1)
	payload, ok := closed[0].payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, producerID, payload["producerId"])

	list, err := bridge.GetProducers("ROOM01", "sess-2", "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCleanupSession_UnknownSessionIsNoop(t *testing.T) {
	bridge, b := testBridge(t)
	departures := bridge.CleanupSession(context.Background(), "ghost")
	assert.Empty(t, departures)
	assert.Empty(t, b.ofType("producer_closed"))
}

// TestCleanupSession_ReportsVoiceDeparture covers the VoiceMembers wiring:
// a session's voice producer closing on cleanup must be reported back so
// the Room Actor can drop the identity from its voice channel.
func TestCleanupSession_ReportsVoiceDeparture(t *testing.T) {
	bridge, _ := testBridge(t)
	ctx := context.Background()

	params, err := bridge.CreateTransport(ctx, "ROOM01", "sess-1", "alice", DirectionSend)
	require.NoError(t, err)
	_, voice, err := bridge.Produce(ctx, "ROOM01", "sess-1", "alice", ProduceInput{
		TransportID: params.ID,
		Kind:        "audio",
		AppData:     map[string]interface{}{"type": "voice"},
	})
	require.NoError(t, err)
	require.True(t, voice)

	departures := bridge.CleanupSession(ctx, "sess-1")
	require.Len(t, departures, 1)
	assert.Equal(t, "ROOM01", departures[0].RoomCode)
	assert.Equal(t, "alice", departures[0].Identity)
}
