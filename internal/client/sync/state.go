package sync

// State is the position of the engine in a pass.
type State int32

const (
	StateIdle State = iota
	StateListing
	StateDownloading
	StateFinalizing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListing:
		return "listing"
	case StateDownloading:
		return "downloading"
	case StateFinalizing:
		return "finalizing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
