package proto

import "encoding/json"

// Inbound message types (client to server).
const (
	InboundTypeJoin                   = "join"
	InboundTypeChatMessage            = "chat_message"
	InboundTypeWebRTCOffer            = "webrtc_offer"
	InboundTypeWebRTCAnswer           = "webrtc_answer"
	InboundTypeWebRTCICECandidate     = "webrtc_ice_candidate"
	InboundTypeToggleMute             = "toggle_mute"
	InboundTypeToggleVideo            = "toggle_video"
	InboundTypeRaiseHand              = "raise_hand"
	InboundTypeRequestAudioConnection = "request_audio_connection"
)

// Outbound message types (server to client).
const (
	OutboundTypeRoomState              = "room_state"
	OutboundTypeMemberJoined           = "member_joined"
	OutboundTypeUserLeft               = "user_left"
	OutboundTypeHostChanged            = "host_changed"
	OutboundTypeRoomEnded              = "room_ended"
	OutboundTypeChatMessage            = "chat_message"
	OutboundTypeWebRTCOffer            = "webrtc_offer"
	OutboundTypeWebRTCAnswer           = "webrtc_answer"
	OutboundTypeICECandidate           = "ice_candidate"
	OutboundTypeUserMuteToggle         = "user_mute_toggle"
	OutboundTypeUserVideoToggle        = "user_video_toggle"
	OutboundTypeHandRaised             = "hand_raised"
	OutboundTypeAudioConnectionRequest = "audio_connection_request"
	OutboundTypeError                  = "error"
)

// Inbound is the flat envelope for messages coming from the client.
// Only the fields matching Type are populated; signaling payloads stay
// opaque raw JSON.
type Inbound struct {
	Type string `json:"type"`

	// join
	Password string `json:"password,omitempty"`

	// chat_message
	Message string `json:"message,omitempty"`

	// webrtc_* and request_audio_connection
	TargetUserID int64           `json:"target_user_id,omitempty"`
	Offer        json.RawMessage `json:"offer,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`

	// toggles
	IsMuted      *bool `json:"is_muted,omitempty"`
	VideoEnabled *bool `json:"video_enabled,omitempty"`
	HandRaised   *bool `json:"hand_raised,omitempty"`
}

// ParticipantState is one member's state in a room snapshot.
type ParticipantState struct {
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	IsMuted      bool   `json:"is_muted"`
	HandRaised   bool   `json:"hand_raised"`
	VideoEnabled bool   `json:"video_enabled"`
	JoinedAt     string `json:"joined_at"`
}

// Outbound is the flat envelope for messages sent to the client.
type Outbound struct {
	Type string `json:"type"`

	RoomID   int64  `json:"room_id,omitempty"`
	RoomUUID string `json:"room_uuid,omitempty"`

	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`

	FromUserID   int64 `json:"from_user_id,omitempty"`
	TargetUserID int64 `json:"target_user_id,omitempty"`

	MessageID int64  `json:"message_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`

	IsMuted      *bool `json:"is_muted,omitempty"`
	VideoEnabled *bool `json:"video_enabled,omitempty"`
	HandRaised   *bool `json:"hand_raised,omitempty"`

	Participants []ParticipantState `json:"participants,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}
