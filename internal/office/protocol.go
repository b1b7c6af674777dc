package office

import "github.com/syncrospace/office-server/internal/chat"

// Inbound message types, dispatched by the room to their handlers.
const (
	MsgUpdatePlayer                = "UPDATE_PLAYER"
	MsgJoinOffice                  = "JOIN_OFFICE"
	MsgLeaveOffice                 = "LEAVE_OFFICE"
	MsgSendGlobalMessage           = "SEND_GLOBAL_MESSAGE"
	MsgSendOfficeMessage           = "SEND_OFFICE_MESSAGE"
	MsgConnectToVideoCall          = "CONNECT_TO_VIDEO_CALL"
	MsgEndVideoCall                = "END_VIDEO_CALL"
	MsgConnectToOfficeVideoCall    = "CONNECT_TO_OFFICE_VIDEO_CALL"
	MsgConnectToProximityVideoCall = "CONNECT_TO_PROXIMITY_VIDEO_CALL"
	MsgStartScreenShare            = "START_SCREEN_SHARE"
	MsgStopScreenShare             = "STOP_SCREEN_SHARE"
)

// Outbound event names.
const (
	EvtGetGlobalChat      = "GET_GLOBAL_CHAT"
	EvtGetOfficeChat      = "GET_OFFICE_CHAT"
	EvtNewGlobalMessage   = "NEW_GLOBAL_MESSAGE"
	EvtNewOfficeMessage   = "NEW_OFFICE_MESSAGE"
	EvtUserJoinedOffice   = "USER_JOINED_OFFICE"
	EvtPlayerLeftOffice   = "PLAYER_LEFT_OFFICE"
	EvtProximityUpdate    = "PROXIMITY_UPDATE"
	EvtIncomingVideoCall  = "INCOMING_VIDEO_CALL"
	EvtVideoCallEnded     = "VIDEO_CALL_ENDED"
	EvtScreenShareStarted = "SCREEN_SHARE_STARTED"
	EvtScreenShareStopped = "SCREEN_SHARE_STOPPED"

	// Presence replication events. These stand in for the delta-sync
	// transport the browser client otherwise relies on.
	EvtRoomState     = "ROOM_STATE"
	EvtPlayerJoined  = "PLAYER_JOINED_ROOM"
	EvtPlayerLeft    = "PLAYER_LEFT_ROOM"
	EvtPlayerUpdated = "PLAYER_UPDATED"
)

// OfficeChat carries a zone's full chat history to a joining member.
type OfficeChat struct {
	Office   string          `json:"office"`
	Messages []*chat.Message `json:"messages"`
}

// ZoneEvent notifies zone members of a membership change.
type ZoneEvent struct {
	ID       string        `json:"id"`
	Username string        `json:"username"`
	Office   string        `json:"office"`
	Message  *chat.Message `json:"message"`
}

// ScreenShareEvent notifies a recipient of a screen share transition.
type ScreenShareEvent struct {
	FromUser string `json:"fromUser"`
	Office   string `json:"office"`
}

// RoomState is the presence snapshot sent to a joining session.
type RoomState struct {
	Players map[string]*Player `json:"players"`
}

// PlayerUpdated relays an applied partial update to the other sessions.
type PlayerUpdated struct {
	ID     string       `json:"id"`
	Update PlayerUpdate `json:"update"`
}

// PlayerRef identifies a player in presence events.
type PlayerRef struct {
	ID string `json:"id"`
}
