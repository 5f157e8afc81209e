package gateway

import "encoding/json"

// Client -> server event types.
const (
	EventIdentify               = "identify"
	EventCreateRoom             = "create_room"
	EventJoinRoom               = "join_room"
	EventLeaveRoom              = "leave_room"
	EventSyncRequest            = "sync_request"
	EventGetRouterCapabilities  = "get_router_capabilities"
	EventCreateTransport        = "create_transport"
	EventConnectTransport       = "connect_transport"
	EventProduce                = "produce"
	EventConsume                = "consume"
	EventResumeConsumer         = "resume_consumer"
	EventGetProducers           = "get_producers"
	EventSendMessage            = "send_message"
	EventEditMessage            = "edit_message"
	EventDeleteMessage          = "delete_message"
	EventAddMessageReaction     = "add_message_reaction"
	EventSendReaction           = "send_reaction"
	EventUpdatePlayback         = "update_playback"
	EventToggleLock             = "toggle_lock"
	EventTransferHost           = "transfer_host"
	EventKickUser               = "kick_user"
	EventScreenShareStart       = "screen_share_start"
	EventScreenShareStop        = "screen_share_stop"
	EventScreenShareReady       = "screen_share_ready"
	EventScreenShareOffer       = "screen_share_offer"
	EventScreenShareAnswer      = "screen_share_answer"
	EventScreenShareICE         = "screen_share_ice"
)

// Server -> client broadcast/emit event types.
const (
	EventUserJoined            = "user_joined"
	EventUserLeft              = "user_left"
	EventNewMessage            = "new_message"
	EventMessageUpdated        = "message_updated"
	EventMessageDeleted        = "message_deleted"
	EventMessageReactionUpdate = "message_reaction_update"
	EventReactionReceived      = "reaction_received"
	EventPlaybackSync          = "playback_sync"
	EventRoomLocked            = "room_locked"
	EventHostUpdate            = "host_update"
	EventKicked                = "kicked"
	EventScreenShareStarted    = "screen_share_started"
	EventScreenShareStopped    = "screen_share_stopped"
	EventScreenShareReqOffer   = "screen_share_request_offer"
	EventVoiceNewProducer      = "voice-new-producer"
	EventNewProducer           = "new_producer"
	EventProducerClosed        = "producer_closed"
	EventExistingProducers     = "existing-producers"
)

// inboundEnvelope is the wire shape for every client -> server frame,
// mirroring the teacher's Message{Type, Payload} envelope with requestId
// added to carry the ack semantics the teacher's chat protocol never
// needed.
type inboundEnvelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// outboundEnvelope is the wire shape for every server -> client frame.
// Acked replies set RequestID/OK; broadcasts and emits leave both empty.
type outboundEnvelope struct {
	Type      string        `json:"type"`
	RequestID string        `json:"requestId,omitempty"`
	OK        *bool         `json:"ok,omitempty"`
	Payload   interface{}   `json:"payload,omitempty"`
	Error     *errorPayload `json:"error,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

// busEnvelope mirrors room.envelope, the shape PubSubBroadcaster wraps
// every published payload in. It is redeclared here rather than exported
// from internal/room so the two packages stay decoupled on the wire
// format, not the Go type.
type busEnvelope struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Exclude   string          `json:"exclude,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// Inbound payload shapes.

type identifyPayload struct {
	Token string `json:"token"`
}

type createRoomPayload struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	RoomName string `json:"roomName"`
	Kind     string `json:"kind"`
	Privacy  string `json:"privacy"`
}

type joinRoomPayload struct {
	RoomCode string `json:"roomCode"`
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
}

type roomScopedPayload struct {
	RoomCode string `json:"roomCode"`
}

type sendMessagePayload struct {
	RoomCode string `json:"roomCode"`
	Content  string `json:"content"`
	ReplyTo  string `json:"replyTo,omitempty"`
}

type editMessagePayload struct {
	RoomCode  string `json:"roomCode"`
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

type deleteMessagePayload struct {
	RoomCode  string `json:"roomCode"`
	MessageID string `json:"messageId"`
}

type addReactionPayload struct {
	RoomCode  string `json:"roomCode"`
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type sendReactionPayload struct {
	RoomCode string `json:"roomCode"`
	Emoji    string `json:"emoji"`
}

type updatePlaybackPayload struct {
	RoomCode    string       `json:"roomCode"`
	Action      string       `json:"action"`
	IsPlaying   bool         `json:"isPlaying"`
	CurrentTime float64      `json:"currentTime"`
	Media       *mediaInput  `json:"media,omitempty"`
}

type mediaInput struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
	Name string `json:"name,omitempty"`
}

type transferHostPayload struct {
	RoomCode string `json:"roomCode"`
	Target   string `json:"targetIdentity"`
}

type kickUserPayload struct {
	RoomCode string `json:"roomCode"`
	Target   string `json:"targetIdentity"`
}

type createTransportPayload struct {
	RoomCode  string `json:"roomCode"`
	Direction string `json:"direction"`
}

type connectTransportPayload struct {
	RoomCode       string                 `json:"roomCode"`
	TransportID    string                 `json:"transportId"`
	DtlsParameters map[string]interface{} `json:"dtlsParameters"`
}

type producePayload struct {
	RoomCode    string                 `json:"roomCode"`
	TransportID string                 `json:"transportId"`
	Kind        string                 `json:"kind"`
	SDP         string                 `json:"sdp"`
	AppData     map[string]interface{} `json:"appData,omitempty"`
}

type consumePayload struct {
	RoomCode    string `json:"roomCode"`
	TransportID string `json:"transportId"`
	ProducerID  string `json:"producerId"`
}

type resumeConsumerPayload struct {
	RoomCode   string `json:"roomCode"`
	ConsumerID string `json:"consumerId"`
}

type getProducersPayload struct {
	RoomCode string `json:"roomCode"`
	Type     string `json:"type,omitempty"`
}

type screenShareSignalPayload struct {
	RoomCode string                 `json:"roomCode"`
	To       string                 `json:"to"`
	Offer    map[string]interface{} `json:"offer,omitempty"`
	Answer   map[string]interface{} `json:"answer,omitempty"`
	Candidate map[string]interface{} `json:"candidate,omitempty"`
}
