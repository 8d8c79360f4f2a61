package relay

// State 是单个连接的协议状态。
type State int

const (
	StateConnected State = iota
	StateIdentified
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session 归单个连接的读循环独占，不跨连接共享。
// AuthUserID 来自握手时的 token，非空时 login 的 userId1 必须与之一致。
type Session struct {
	ConnID     string
	AuthUserID string
	UserID     string
	State      State
}

func NewSession(connID, authUserID string) *Session {
	return &Session{ConnID: connID, AuthUserID: authUserID, State: StateConnected}
}
