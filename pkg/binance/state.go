package binance

// State is the lifecycle of a Manager connection:
// Disconnected -> Connecting -> Open -> Closing -> Disconnected.
// Failures while Connecting or Open fall straight back to Disconnected.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}
