package domain

type SessionMode int

const (
	ModeAwaitAuthChoice SessionMode = iota
	ModeAwaitNewUsername
	ModeAwaitNewPassword
	ModeAwaitUsername
	ModeAwaitPassword
	ModeFree
	ModeAwaitRoomChoice
	ModeAwaitNewRoomName
)

func (m SessionMode) String() string {
	switch m {
	case ModeAwaitAuthChoice:
		return "await_auth_choice"
	case ModeAwaitNewUsername:
		return "await_new_username"
	case ModeAwaitNewPassword:
		return "await_new_password"
	case ModeAwaitUsername:
		return "await_username"
	case ModeAwaitPassword:
		return "await_password"
	case ModeFree:
		return "free"
	case ModeAwaitRoomChoice:
		return "await_room_choice"
	case ModeAwaitNewRoomName:
		return "await_new_room_name"
	default:
		return "unknown"
	}
}

func (m SessionMode) Authenticated() bool {
	return m >= ModeFree
}

// SessionState is the pending-input variant of a session. Only the goroutine
// serving the connection reads or writes it.
type SessionState struct {
	Mode SessionMode
	// PendingUsername is set between the username and password prompts.
	PendingUsername string
	// Menu holds the room names offered by the last numbered menu, in order.
	Menu []string
}

func NewSessionState() SessionState {
	return SessionState{Mode: ModeAwaitAuthChoice}
}

func (s *SessionState) To(mode SessionMode) {
	s.Mode = mode
	if mode != ModeAwaitNewPassword && mode != ModeAwaitPassword {
		s.PendingUsername = ""
	}
	if mode != ModeAwaitRoomChoice {
		s.Menu = nil
	}
}

func (s *SessionState) AwaitUsername(mode SessionMode, username string) {
	s.To(mode)
	s.PendingUsername = username
}

func (s *SessionState) AwaitRoomChoice(menu []string) {
	s.To(ModeAwaitRoomChoice)
	s.Menu = menu
}
