package httpserver

import (
	"sync"

	"github.com/bryanwahyu/insights-copilot/internal/domain/dataset"
)

// Workspace holds the uploaded tables in memory. A table is replaced
// wholesale on upload; readers always see a complete table.
type Workspace struct {
	mu     sync.RWMutex
	tables map[string]*dataset.Table
}

func NewWorkspace() *Workspace {
	return &Workspace{tables: make(map[string]*dataset.Table)}
}

func (w *Workspace) Put(name string, t *dataset.Table) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tables[name] = t
}

func (w *Workspace) Get(name string) *dataset.Table {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tables[name]
}

// Both returns the sales and support tables; either may be nil.
func (w *Workspace) Both() (sales, support *dataset.Table) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tables["sales"], w.tables["support"]
}
