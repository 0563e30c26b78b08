package commerce

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/freightdesk/internal/shared"
)

type memState struct {
	docs    map[int64]*Document
	history map[int64][]HistoryEntry
	seqs    map[string]int64
	nextID  int64
	lineID  int64
}

func (s memState) clone() memState {
	cp := memState{
		docs:    make(map[int64]*Document, len(s.docs)),
		history: make(map[int64][]HistoryEntry, len(s.history)),
		seqs:    make(map[string]int64, len(s.seqs)),
		nextID:  s.nextID,
		lineID:  s.lineID,
	}
	for id, doc := range s.docs {
		cp.docs[id] = doc.Clone()
	}
	for id, entries := range s.history {
		cp.history[id] = append([]HistoryEntry(nil), entries...)
	}
	for k, v := range s.seqs {
		cp.seqs[k] = v
	}
	return cp
}

// mockRepository is an in-memory Repository. Units of work are serialised and
// rolled back on error. beforeUpdate simulates a concurrent writer committing
// just before the next Update.
type mockRepository struct {
	txMu sync.Mutex
	mu   sync.Mutex

	state    memState
	snapshot *memState

	beforeUpdate func(st *memState)
	updateCalls  int
}

func newMockRepository() *mockRepository {
	return &mockRepository{state: memState{
		docs:    map[int64]*Document{},
		history: map[int64][]HistoryEntry{},
		seqs:    map[string]int64{},
	}}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snap := m.state.clone()
	m.snapshot = &snap
	m.mu.Unlock()

	err := fn(ctx, m)

	m.mu.Lock()
	if err != nil {
		m.state = *m.snapshot
	}
	m.snapshot = nil
	m.mu.Unlock()
	return err
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.state.docs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return doc.Clone(), nil
}

func (m *mockRepository) GetByToken(ctx context.Context, kind Kind, token string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range m.state.docs {
		if doc.Kind == kind && doc.PublicToken == token {
			return doc.Clone(), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepository) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Document
	for _, doc := range m.sortedDocs() {
		if filter.Kind != "" && doc.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.ClientID != nil && (doc.Customer.ClientID == nil || *doc.Customer.ClientID != *filter.ClientID) {
			continue
		}
		if filter.Search != "" && !strings.Contains(doc.Reference, filter.Search) {
			continue
		}
		out = append(out, *doc.Clone())
	}
	total := len(out)
	if filter.Offset >= total {
		return []Document{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if filter.Limit <= 0 || end > total {
		end = total
	}
	return out[filter.Offset:end], total, nil
}

func (m *mockRepository) ListOverdue(ctx context.Context, asOf, remindedBefore time.Time, limit int) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Document
	for _, doc := range m.sortedDocs() {
		if doc.Status == StatusDraft || !doc.IsOverdue(asOf) {
			continue
		}
		if doc.LastReminderSent != nil && !doc.LastReminderSent.Before(remindedBefore) {
			continue
		}
		out = append(out, *doc.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockRepository) sortedDocs() []*Document {
	docs := make([]*Document, 0, len(m.state.docs))
	for _, doc := range m.state.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

func (m *mockRepository) InvoiceForQuote(ctx context.Context, quoteID int64) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range m.state.docs {
		if doc.Kind == KindInvoice && doc.QuoteID != nil && *doc.QuoteID == quoteID {
			return doc.Clone(), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepository) NextReference(ctx context.Context, kind Kind, year int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s-%d", kind, year)
	m.state.seqs[key]++
	return FormatReference(kind, year, m.state.seqs[key]), nil
}

func (m *mockRepository) Insert(ctx context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.state.docs {
		if existing.Kind == doc.Kind && existing.PublicToken == doc.PublicToken {
			return fmt.Errorf("duplicate token")
		}
		if doc.QuoteID != nil && existing.QuoteID != nil && *existing.QuoteID == *doc.QuoteID {
			return fmt.Errorf("%w: quote already converted", shared.ErrInvalidState)
		}
	}
	m.state.nextID++
	doc.ID = m.state.nextID
	doc.Version = 1
	m.assignLineIDs(doc)
	m.state.docs[doc.ID] = doc.Clone()
	return nil
}

func (m *mockRepository) assignLineIDs(doc *Document) {
	for i := range doc.Lines {
		m.state.lineID++
		doc.Lines[i].ID = m.state.lineID
		doc.Lines[i].DocumentID = doc.ID
	}
}

func (m *mockRepository) Update(ctx context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if hook := m.beforeUpdate; hook != nil {
		m.beforeUpdate = nil
		hook(&m.state)
		if m.snapshot != nil {
			hook(m.snapshot)
		}
	}
	stored, ok := m.state.docs[doc.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != doc.Version {
		return fmt.Errorf("%w: document %d", shared.ErrConcurrencyConflict, doc.ID)
	}
	saved := doc.Clone()
	saved.Lines = stored.Lines
	saved.Version++
	m.state.docs[doc.ID] = saved
	doc.Version++
	return nil
}

func (m *mockRepository) ReplaceLines(ctx context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.state.docs[doc.ID]
	if !ok {
		return shared.ErrNotFound
	}
	m.assignLineIDs(doc)
	stored.Lines = doc.Clone().Lines
	return nil
}

func (m *mockRepository) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.state.history[entry.DocumentID]
	entry.Seq = int64(len(entries)) + 1
	m.state.history[entry.DocumentID] = append(entries, *entry)
	return nil
}

func (m *mockRepository) History(ctx context.Context, documentID int64) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HistoryEntry{}, m.state.history[documentID]...), nil
}

func (m *mockRepository) historyLen(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.history[id])
}

func (m *mockRepository) stored(id int64) *Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.docs[id].Clone()
}
