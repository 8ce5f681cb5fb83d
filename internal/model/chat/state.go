package chat

// ChannelState is the lifecycle state of one channel instance.
type ChannelState int

const (
	StateIdle ChannelState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

func (s ChannelState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Channel names reported through Observer.OnConnectionStateChange.
const (
	ChannelChat      = "chat"
	ChannelEvents    = "events"
	ChannelHeartbeat = "heartbeat"
)
