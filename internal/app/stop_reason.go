package app

// StopReason records why the process is going down; the exit code tells the
// service manager whether to restart us.
type StopReason int

const (
	StopUnknown StopReason = iota
	StopSignal
	StopShutdownCommand
	StopReloadCommand
	StopFatalError
)

func (r StopReason) String() string {
	switch r {
	case StopSignal:
		return "signal"
	case StopShutdownCommand:
		return "shutdown command"
	case StopReloadCommand:
		return "reload command"
	case StopFatalError:
		return "fatal error"
	default:
		return "unknown"
	}
}

// ExitCode maps the reason to the process exit status. The unit file treats
// exitReload as "restart me" and everything else as final.
const (
	exitClean  = 0
	exitFatal  = 1
	exitReload = 10
)

func (r StopReason) ExitCode() int {
	switch r {
	case StopReloadCommand:
		return exitReload
	case StopFatalError:
		return exitFatal
	default:
		return exitClean
	}
}
