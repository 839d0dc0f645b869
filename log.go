package agents

import (
	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/nomad-xyz/agents/agent"
	"github.com/nomad-xyz/agents/db"
	"github.com/nomad-xyz/agents/monitor"
	"github.com/nomad-xyz/agents/sync"
	"github.com/nomad-xyz/agents/watcher"
)

// subsystem tags, matching the teacher's short-code convention
// (peerLog "PEER", srvrLog "SRVR", ...).
const (
	subsystemWatcher = "WTCH"
	subsystemMonitor = "MNTR"
	subsystemSync    = "SYNC"
	subsystemStore   = "STOR"
	subsystemAgent   = "AGNT"
)

var backendLog *btclog.Backend

// subsystemLoggers lists every package-level logger this binary wires, so
// SetLogLevels can walk them uniformly.
var subsystemLoggers = make(map[string]btclog.Logger)

// InitLogRotator opens a rotated log file at logFile (rolled at 10 MB, i.e.
// a 10*1024 KB threshold, rolled files not compressed, keeping maxRolls old
// files) and points every subsystem
// logger's backend at it.
func InitLogRotator(logFile string, maxRolls int) error {
	r, err := rotator.New(logFile, 10*1024, false, maxRolls)
	if err != nil {
		return err
	}

	backendLog = btclog.NewBackend(r)

	subsystemLoggers[subsystemWatcher] = backendLog.Logger(subsystemWatcher)
	subsystemLoggers[subsystemMonitor] = backendLog.Logger(subsystemMonitor)
	subsystemLoggers[subsystemSync] = backendLog.Logger(subsystemSync)
	subsystemLoggers[subsystemStore] = backendLog.Logger(subsystemStore)
	subsystemLoggers[subsystemAgent] = backendLog.Logger(subsystemAgent)

	watcher.UseLogger(subsystemLoggers[subsystemWatcher])
	monitor.UseLogger(subsystemLoggers[subsystemMonitor])
	sync.UseLogger(subsystemLoggers[subsystemSync])
	db.UseLogger(subsystemLoggers[subsystemStore])
	agent.UseLogger(subsystemLoggers[subsystemAgent])

	return nil
}

// SetLogLevels sets every wired subsystem logger to levelStr (e.g.
// "debug", "info", "warn"), as parsed from the --debuglevel CLI flag.
func SetLogLevels(levelStr string) error {
	level, ok := btclog.LevelFromString(levelStr)
	if !ok {
		return errUnknownLogLevel(levelStr)
	}

	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}

	return nil
}

type errUnknownLogLevel string

func (e errUnknownLogLevel) Error() string {
	return "unknown log level: " + string(e)
}
