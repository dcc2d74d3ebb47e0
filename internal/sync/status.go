package sync

// Status is the externally observable sync state. It exists for display
// and diagnostics; no control flow outside this package depends on it.
type Status int

const (
	StatusIdle Status = iota
	StatusSyncing
	StatusSynced
	StatusOffline
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSyncing:
		return "syncing"
	case StatusSynced:
		return "synced"
	case StatusOffline:
		return "offline"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}
