package auditsvc

import (
	"fmt"
	"strings"

	"github.com/trezcool/darasa/core"
)

type consoleService struct {
	log core.Logger
}

var _ core.AuditLogger = (*consoleService)(nil)

// NewConsoleService writes audit entries to the application log. Suitable for
// development and for deployments without a dedicated audit store.
func NewConsoleService(log core.Logger) core.AuditLogger {
	return &consoleService{log: log}
}

func (svc consoleService) Record(entries ...core.AuditEntry) {
	for _, entry := range entries {
		go svc.record(entry)
	}
}

func (svc consoleService) record(entry core.AuditEntry) {
	line := new(strings.Builder)
	_, _ = fmt.Fprintf(line, "audit: %s %s %s", entry.ActorName, entry.ActionType, entry.TargetType)
	if entry.TargetName != "" {
		_, _ = fmt.Fprintf(line, " %q", entry.TargetName)
	}
	if entry.SubjectID != "" {
		_, _ = fmt.Fprintf(line, " (subject %s)", entry.SubjectID)
	}
	if entry.Details != "" {
		_, _ = fmt.Fprintf(line, ": %s", entry.Details)
	}
	svc.log.Info(line.String())
}
