package office

import (
	"encoding/json"

	"github.com/syncrospace/office-server/internal/chat"
)

// Handlers follow a shared philosophy: a malformed, stale or
// out-of-scope request is dropped without effect, never escalated. A
// single bad client must not disturb the rest of the room.

func (r *Room) handleUpdatePlayer(sessionID string, payload json.RawMessage) {
	p, ok := r.players[sessionID]
	if !ok {
		return
	}
	var u PlayerUpdate
	if err := json.Unmarshal(payload, &u); err != nil {
		return
	}
	p.Apply(u)
	r.sender.Broadcast(EvtPlayerUpdated, PlayerUpdated{ID: sessionID, Update: u}, sessionID)
}

// zoneRequest is the payload of JOIN_OFFICE and LEAVE_OFFICE.
type zoneRequest struct {
	Username string `json:"username"`
	Office   string `json:"office"`
}

func (r *Room) handleJoinOffice(sessionID string, payload json.RawMessage) {
	var req zoneRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	z, ok := r.zones[req.Office]
	if !ok {
		return
	}

	z.members[sessionID] = req.Username
	msg := r.chat.Append(z.ID, sessionID, req.Username, "Joined "+z.Name, chat.TypePlayerJoined)
	if p, ok := r.players[sessionID]; ok {
		p.CurrentOffice = z.ID
	}

	r.sender.Send(sessionID, EvtGetOfficeChat, OfficeChat{
		Office:   z.ID,
		Messages: r.chat.History(z.ID),
	})
	notice := ZoneEvent{ID: sessionID, Username: req.Username, Office: z.ID, Message: msg}
	for id := range z.members {
		if id == sessionID {
			continue
		}
		r.sender.Send(id, EvtUserJoinedOffice, notice)
	}
}

func (r *Room) handleLeaveOffice(sessionID string, payload json.RawMessage) {
	var req zoneRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	z, ok := r.zones[req.Office]
	if !ok {
		return
	}
	if _, member := z.members[sessionID]; !member {
		return
	}
	r.leaveZone(sessionID, req.Username, z)
}

// leaveZone removes the membership, logs the transition and notifies
// every remaining member. The leaver is already gone, so unlike join
// there is nobody to exclude.
func (r *Room) leaveZone(sessionID, username string, z *Zone) {
	delete(z.members, sessionID)
	msg := r.chat.Append(z.ID, sessionID, username, "Left "+z.Name, chat.TypePlayerLeft)
	if p, ok := r.players[sessionID]; ok {
		p.CurrentOffice = ""
	}

	notice := ZoneEvent{ID: sessionID, Username: username, Office: z.ID, Message: msg}
	for id := range z.members {
		r.sender.Send(id, EvtPlayerLeftOffice, notice)
	}
}

// chatRequest is the payload of SEND_GLOBAL_MESSAGE and
// SEND_OFFICE_MESSAGE.
type chatRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Office   string `json:"office"`
}

func (r *Room) handleGlobalMessage(sessionID string, payload json.RawMessage) {
	var req chatRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	msg := r.chat.Append(chat.ScopeGlobal, sessionID, req.Username, req.Message, chat.TypeRegular)
	r.sender.Broadcast(EvtNewGlobalMessage, msg)
}

func (r *Room) handleOfficeMessage(sessionID string, payload json.RawMessage) {
	var req chatRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	z, ok := r.zones[req.Office]
	if !ok {
		return
	}
	msg := r.chat.Append(z.ID, sessionID, req.Username, req.Message, chat.TypeRegular)
	for id := range z.members {
		r.sender.Send(id, EvtNewOfficeMessage, msg)
	}
}

// Signaling relay: stateless forwarding of call and screen-share
// envelopes. No queuing, no acknowledgment; a disconnected target is a
// silent drop.

func (r *Room) handleConnectToVideoCall(sessionID string, payload json.RawMessage) {
	var target string
	if err := json.Unmarshal(payload, &target); err != nil {
		return
	}
	r.sender.Send(target, EvtIncomingVideoCall, sessionID)
}

func (r *Room) handleEndVideoCall(sessionID string, payload json.RawMessage) {
	var target string
	if err := json.Unmarshal(payload, &target); err != nil {
		return
	}
	r.sender.Send(target, EvtVideoCallEnded, sessionID)
}

func (r *Room) handleOfficeVideoCall(sessionID string, payload json.RawMessage) {
	var officeName string
	if err := json.Unmarshal(payload, &officeName); err != nil {
		return
	}
	z, ok := r.zones[officeName]
	if !ok {
		return
	}
	for id := range z.members {
		if id == sessionID {
			continue
		}
		r.sender.Send(id, EvtIncomingVideoCall, sessionID)
	}
}

func (r *Room) handleProximityVideoCall(sessionID string, payload json.RawMessage) {
	var targets []string
	if err := json.Unmarshal(payload, &targets); err != nil {
		return
	}
	for _, id := range targets {
		if id == sessionID {
			continue
		}
		r.sender.Send(id, EvtIncomingVideoCall, sessionID)
	}
}

// screenShareRequest is the payload of START/STOP_SCREEN_SHARE.
type screenShareRequest struct {
	Office      string   `json:"office"`
	TargetUsers []string `json:"targetUsers"`
}

func (r *Room) handleStartScreenShare(sessionID string, payload json.RawMessage) {
	r.relayScreenShare(sessionID, payload, EvtScreenShareStarted)
}

func (r *Room) handleStopScreenShare(sessionID string, payload json.RawMessage) {
	r.relayScreenShare(sessionID, payload, EvtScreenShareStopped)
}

func (r *Room) relayScreenShare(sessionID string, payload json.RawMessage, event string) {
	var req screenShareRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	notice := ScreenShareEvent{FromUser: sessionID, Office: req.Office}
	for _, id := range req.TargetUsers {
		r.sender.Send(id, event, notice)
	}
}
