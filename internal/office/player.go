package office

// Defaults applied when a joining client omits the matching option.
const (
	DefaultX      = 400.0
	DefaultY      = 300.0
	DefaultAvatar = "adam"
	DefaultStatus = "online"
)

// Player is the per-session avatar state. One Player exists per joined
// session; it is created on join, mutated only by UPDATE_PLAYER and
// zone transitions, and removed on leave.
type Player struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	Avatar         string  `json:"avatar"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Anim           string  `json:"anim"`
	IsMicOn        bool    `json:"isMicOn"`
	IsWebcamOn     bool    `json:"isWebcamOn"`
	IsDisconnected bool    `json:"isDisconnected"`
	Status         string  `json:"status"`
	CurrentOffice  string  `json:"currentOffice"`
}

// JoinOptions are the client-supplied attributes at room join. Absent
// fields fall back to the documented defaults.
type JoinOptions struct {
	Username   string   `json:"username"`
	Avatar     string   `json:"avatar"`
	X          *float64 `json:"x"`
	Y          *float64 `json:"y"`
	IsMicOn    *bool    `json:"isMicOn"`
	IsWebcamOn *bool    `json:"isWebcamOn"`
}

// NewPlayer creates a Player for the session with opts applied over the
// defaults.
func NewPlayer(sessionID string, opts JoinOptions) *Player {
	p := &Player{
		ID:       sessionID,
		Username: opts.Username,
		Avatar:   opts.Avatar,
		X:        DefaultX,
		Y:        DefaultY,
		Status:   DefaultStatus,
	}
	if p.Username == "" {
		short := sessionID
		if len(short) > 6 {
			short = short[:6]
		}
		p.Username = "anon-" + short
	}
	if p.Avatar == "" {
		p.Avatar = DefaultAvatar
	}
	if opts.X != nil {
		p.X = *opts.X
	}
	if opts.Y != nil {
		p.Y = *opts.Y
	}
	if opts.IsMicOn != nil {
		p.IsMicOn = *opts.IsMicOn
	}
	if opts.IsWebcamOn != nil {
		p.IsWebcamOn = *opts.IsWebcamOn
	}
	p.Anim = p.Avatar + "_idle_down"
	return p
}

// StatusUpdate is the nested status portion of an UPDATE_PLAYER payload.
type StatusUpdate struct {
	IsMicOn        *bool   `json:"isMicOn"`
	IsWebcamOn     *bool   `json:"isWebcamOn"`
	IsDisconnected *bool   `json:"isDisconnected"`
	Status         *string `json:"status"`
}

// PlayerUpdate is a partial update: only fields present in the payload
// are applied, everything else is left untouched.
type PlayerUpdate struct {
	X      *float64      `json:"x"`
	Y      *float64      `json:"y"`
	Anim   *string       `json:"anim"`
	Status *StatusUpdate `json:"status"`
}

// Apply merges the update into the player.
func (p *Player) Apply(u PlayerUpdate) {
	if u.X != nil {
		p.X = *u.X
	}
	if u.Y != nil {
		p.Y = *u.Y
	}
	if u.Anim != nil {
		p.Anim = *u.Anim
	}
	if u.Status == nil {
		return
	}
	if u.Status.IsMicOn != nil {
		p.IsMicOn = *u.Status.IsMicOn
	}
	if u.Status.IsWebcamOn != nil {
		p.IsWebcamOn = *u.Status.IsWebcamOn
	}
	if u.Status.IsDisconnected != nil {
		p.IsDisconnected = *u.Status.IsDisconnected
	}
	if u.Status.Status != nil {
		p.Status = *u.Status.Status
	}
}
