package http

import (
	"time"

	"github.com/Aswin1819/talkmate-server/internal/core"
	"github.com/Aswin1819/talkmate-server/internal/proto"
)

// outboundFromEvent converts a core event into the wire envelope the
// client expects. Unknown kinds fall through to an error envelope so a
// mapping gap surfaces on the wire instead of as a silent drop.
func outboundFromEvent(ev core.Event) proto.Outbound {
	switch ev.Kind {
	case core.EventRoomState:
		return proto.Outbound{
			Type:         proto.OutboundTypeRoomState,
			RoomID:       ev.RoomID,
			RoomUUID:     ev.RoomUUID,
			Participants: participantStates(ev.Members),
		}

	case core.EventMemberJoined:
		out := proto.Outbound{
			Type:   proto.OutboundTypeMemberJoined,
			RoomID: ev.RoomID,
		}
		fillMember(&out, ev.Member)
		return out

	case core.EventMemberLeft:
		return proto.Outbound{
			Type:     proto.OutboundTypeUserLeft,
			RoomID:   ev.RoomID,
			UserID:   ev.From.UserID,
			Username: ev.From.Username,
		}

	case core.EventHostChanged:
		out := proto.Outbound{
			Type:   proto.OutboundTypeHostChanged,
			RoomID: ev.RoomID,
		}
		fillMember(&out, ev.Member)
		return out

	case core.EventRoomEnded:
		return proto.Outbound{
			Type:   proto.OutboundTypeRoomEnded,
			RoomID: ev.RoomID,
		}

	case core.EventChatMessage:
		out := proto.Outbound{
			Type:     proto.OutboundTypeChatMessage,
			RoomID:   ev.RoomID,
			UserID:   ev.From.UserID,
			Username: ev.From.Username,
		}
		if ev.Chat != nil {
			out.MessageID = ev.Chat.ID
			out.Message = ev.Chat.Text
			out.Timestamp = ev.Chat.SentAt.UTC().Format(time.RFC3339)
		}
		return out

	case core.EventSignalOffer:
		return proto.Outbound{
			Type:         proto.OutboundTypeWebRTCOffer,
			RoomID:       ev.RoomID,
			FromUserID:   ev.From.UserID,
			Username:     ev.From.Username,
			TargetUserID: ev.Target,
			Offer:        ev.Payload,
		}

	case core.EventSignalAnswer:
		return proto.Outbound{
			Type:         proto.OutboundTypeWebRTCAnswer,
			RoomID:       ev.RoomID,
			FromUserID:   ev.From.UserID,
			Username:     ev.From.Username,
			TargetUserID: ev.Target,
			Answer:       ev.Payload,
		}

	case core.EventSignalCandidate:
		return proto.Outbound{
			Type:         proto.OutboundTypeICECandidate,
			RoomID:       ev.RoomID,
			FromUserID:   ev.From.UserID,
			Username:     ev.From.Username,
			TargetUserID: ev.Target,
			Candidate:    ev.Payload,
		}

	case core.EventMuteToggle:
		flag := ev.Flag
		return proto.Outbound{
			Type:     proto.OutboundTypeUserMuteToggle,
			RoomID:   ev.RoomID,
			UserID:   ev.From.UserID,
			Username: ev.From.Username,
			IsMuted:  &flag,
		}

	case core.EventVideoToggle:
		flag := ev.Flag
		return proto.Outbound{
			Type:         proto.OutboundTypeUserVideoToggle,
			RoomID:       ev.RoomID,
			UserID:       ev.From.UserID,
			Username:     ev.From.Username,
			VideoEnabled: &flag,
		}

	case core.EventHandRaised:
		flag := ev.Flag
		return proto.Outbound{
			Type:       proto.OutboundTypeHandRaised,
			RoomID:     ev.RoomID,
			UserID:     ev.From.UserID,
			Username:   ev.From.Username,
			HandRaised: &flag,
		}

	case core.EventAudioConnectRequest:
		out := proto.Outbound{
			Type:         proto.OutboundTypeAudioConnectionRequest,
			RoomID:       ev.RoomID,
			FromUserID:   ev.From.UserID,
			Username:     ev.From.Username,
			TargetUserID: ev.Target,
		}
		if ev.Member != nil {
			// Newcomer fan-out: the member block names who to connect to.
			out.TargetUserID = ev.Member.UserID
		}
		return out

	case core.EventError:
		out := proto.Outbound{Type: proto.OutboundTypeError}
		if ev.Err != nil {
			out.Error = ev.Err.Message
			out.ErrorCode = ev.Err.Code
		}
		return out
	}

	return proto.Outbound{
		Type:      proto.OutboundTypeError,
		Error:     "unmapped server event",
		ErrorCode: core.ErrCodeMalformedMessage,
	}
}

func fillMember(out *proto.Outbound, m *core.MemberInfo) {
	if m == nil {
		return
	}
	out.UserID = m.UserID
	out.Username = m.Username
	out.Role = string(m.Role)
	muted, video, hand := m.IsMuted, m.VideoEnabled, m.HandRaised
	out.IsMuted = &muted
	out.VideoEnabled = &video
	out.HandRaised = &hand
}

func participantStates(members []core.MemberInfo) []proto.ParticipantState {
	states := make([]proto.ParticipantState, 0, len(members))
	for _, m := range members {
		states = append(states, proto.ParticipantState{
			UserID:       m.UserID,
			Username:     m.Username,
			Role:         string(m.Role),
			IsMuted:      m.IsMuted,
			HandRaised:   m.HandRaised,
			VideoEnabled: m.VideoEnabled,
			JoinedAt:     m.JoinedAt.UTC().Format(time.RFC3339),
		})
	}
	return states
}
