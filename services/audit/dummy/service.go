package dummyaudit

import (
	"sync"

	"github.com/trezcool/darasa/core"
)

// Service collects entries in memory so tests can assert on recorded actions.
type Service struct {
	mu      sync.Mutex
	entries []core.AuditEntry
}

var _ core.AuditLogger = (*Service)(nil)

func NewService() *Service {
	return &Service{entries: make([]core.AuditEntry, 0)}
}

func (svc *Service) Record(entries ...core.AuditEntry) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.entries = append(svc.entries, entries...)
}

// Entries returns a copy of everything recorded so far.
func (svc *Service) Entries() []core.AuditEntry {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	entries := make([]core.AuditEntry, len(svc.entries))
	copy(entries, svc.entries)
	return entries
}

// Reset clears the collected entries between test cases.
func (svc *Service) Reset() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.entries = svc.entries[:0]
}
