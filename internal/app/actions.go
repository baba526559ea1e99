package app

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dshills/devpilot/internal/console"
)

// HotReload asks the tool to reload changed code.
func (a *Application) HotReload() error {
	return a.supervisor.HotReload()
}

// HotRestart asks the tool to restart the app from scratch.
func (a *Application) HotRestart() error {
	return a.supervisor.HotRestart()
}

// Clear empties the log buffer.
func (a *Application) Clear() {
	a.classifier.Clear()
}

// Export writes the log to a timestamped file under the export dir and
// returns its path.
func (a *Application) Export() (string, error) {
	name := fmt.Sprintf("%s-%s.log", a.profileName, time.Now().Format("20060102-150405"))
	path := filepath.Join(a.cfg.ExportDir, name)
	if err := a.exportTo(path); err != nil {
		return "", err
	}
	a.classifier.System("Exported log to "+path, false)
	return path, nil
}

// Status summarizes the supervisor for the console.
func (a *Application) Status() console.Status {
	s := console.Status{
		Profile: a.profileName,
		State:   a.supervisor.State(),
		Failure: a.supervisor.Failure(),
	}
	if info, ok := a.supervisor.Info(); ok && !info.Exited {
		s.PID = info.PID
	}
	return s
}

var _ console.Actions = (*Application)(nil)
