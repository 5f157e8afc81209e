package sfu

// RTPCapabilities is the fixed codec list every router advertises.
type RTPCapabilities struct {
	Codecs []CodecCapability `json:"codecs"`
}

// CodecCapability describes one supported codec.
type CodecCapability struct {
	Kind      string `json:"kind"` // "audio" or "video"
	MimeType  string `json:"mimeType"`
	ClockRate uint32 `json:"clockRate"`
	Channels  uint16 `json:"channels,omitempty"`
}

// defaultCapabilities is shared by every router.
var defaultCapabilities = RTPCapabilities{
	Codecs: []CodecCapability{
		{Kind: "audio", MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: "video", MimeType: "video/VP8", ClockRate: 90000},
	},
}

// TransportDirection is "send" or "recv".
type TransportDirection string

const (
	DirectionSend TransportDirection = "send"
	DirectionRecv TransportDirection = "recv"
)

// TransportParams is returned by create_transport: ICE servers plus the
// server's local SDP description the client must answer via
// connect_transport. Each transport binds to 0.0.0.0 and announces the
// resolved IP; ICE servers are STUN always, TURN if credentials are
// configured.
type TransportParams struct {
	ID         string      `json:"id"`
	ICEServers []ICEServer `json:"iceServers"`
	SDP        string      `json:"sdp"`
}

// ICEServer mirrors the browser RTCIceServer shape.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// ProduceInput mirrors the produce payload.
type ProduceInput struct {
	TransportID string
	Kind        string // "audio" or "video"
	SDP         string // client's offer carrying the produced track
	AppData     map[string]interface{}
}

// ProducerInfo is returned by get_producers.
type ProducerInfo struct {
	ProducerID string `json:"producerId"`
	Kind       string `json:"kind"`
	Type       string `json:"type"`
}

// ConsumeInput mirrors the consume payload.
type ConsumeInput struct {
	TransportID string
	ProducerID  string
}

// ConsumerParams is returned by consume.
type ConsumerParams struct {
	ID         string                 `json:"id"`
	ProducerID string                 `json:"producerId"`
	Kind       string                 `json:"kind"`
	SDP        string                 `json:"sdp"`
	AppData    map[string]interface{} `json:"appData,omitempty"`
}

// isVoice reports whether appData marks a producer as belonging to the
// voice channel, which routes its availability over voice-new-producer
// instead of new_producer.
func isVoice(appData map[string]interface{}) bool {
	t, _ := appData["type"].(string)
	return t == "voice"
}
