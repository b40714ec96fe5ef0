// Package status maps libvirt domain states to the names vmw reports.
package status

// State is a VM's lifecycle state.
type State string

const (
	StateNoState     State = "nostate"
	StateRunning     State = "running"
	StateBlocked     State = "blocked"
	StatePaused      State = "paused"
	StateShutdown    State = "shutting-down"
	StateShutoff     State = "shut-off"
	StateCrashed     State = "crashed"
	StatePMSuspended State = "pmsuspended"
	StateUnknown     State = "unknown"
)

// libvirt virDomainState values.
const (
	domainNoState     int32 = 0
	domainRunning     int32 = 1
	domainBlocked     int32 = 2
	domainPaused      int32 = 3
	domainShutdown    int32 = 4
	domainShutoff     int32 = 5
	domainCrashed     int32 = 6
	domainPMSuspended int32 = 7
)

// FromLibvirt maps a state returned by DomainGetState.
func FromLibvirt(state int32) State {
	switch state {
	case domainNoState:
		return StateNoState
	case domainRunning:
		return StateRunning
	case domainBlocked:
		return StateBlocked
	case domainPaused:
		return StatePaused
	case domainShutdown:
		return StateShutdown
	case domainShutoff:
		return StateShutoff
	case domainCrashed:
		return StateCrashed
	case domainPMSuspended:
		return StatePMSuspended
	default:
		return StateUnknown
	}
}

// IsRunning returns true if the guest is executing.
func IsRunning(s State) bool {
	return s == StateRunning || s == StateBlocked
}

// IsStopped returns true if the domain has no running QEMU process.
func IsStopped(s State) bool {
	return s == StateShutoff || s == StateCrashed
}

// IsActive returns true if the domain has a QEMU process, running or not.
func IsActive(s State) bool {
	switch s {
	case StateRunning, StateBlocked, StatePaused, StateShutdown, StatePMSuspended:
		return true
	default:
		return false
	}
}

// IsTransitioning returns true while a shutdown is in progress.
func IsTransitioning(s State) bool {
	return s == StateShutdown
}

func (s State) String() string {
	return string(s)
}
