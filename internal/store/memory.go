package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackzampolin/lexshelf/internal/types"
)

// Memory is an in-process Store. Jobs are stored as JSON so callers never
// share slices with the store, matching the SQL round trip.
type Memory struct {
	mu        sync.Mutex
	pages     map[string]map[int]string
	index     map[string][]types.ChapterIndexEntry
	jobs      map[string]memoryJob
	formatted map[string]map[int]types.FormattedChapter
	virtual   map[string]map[int]types.VirtualPage

	saves int
}

type memoryJob struct {
	state     types.GenerationJobState
	chapters  []byte
	questions []byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		pages:     make(map[string]map[int]string),
		index:     make(map[string][]types.ChapterIndexEntry),
		jobs:      make(map[string]memoryJob),
		formatted: make(map[string]map[int]types.FormattedChapter),
		virtual:   make(map[string]map[int]types.VirtualPage),
	}
}

// JobSaves returns how many times SaveJob succeeded.
func (m *Memory) JobSaves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *Memory) UpsertSourcePages(_ context.Context, workID string, pages []types.SourcePage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byNumber, ok := m.pages[workID]
	if !ok {
		byNumber = make(map[int]string)
		m.pages[workID] = byNumber
	}
	for _, p := range pages {
		byNumber[p.PageNumber] = p.RawText
	}
	return nil
}

func (m *Memory) SourcePages(_ context.Context, workID string) ([]types.SourcePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pages []types.SourcePage
	for n, text := range m.pages[workID] {
		pages = append(pages, types.SourcePage{PageNumber: n, RawText: text})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages, nil
}

func (m *Memory) ReplaceChapterIndex(_ context.Context, workID string, entries []types.ChapterIndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index[workID] = append([]types.ChapterIndexEntry(nil), entries...)
	return nil
}

func (m *Memory) ChapterIndex(_ context.Context, workID string) ([]types.ChapterIndexEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := append([]types.ChapterIndexEntry(nil), m.index[workID]...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Number < entries[j].Number })
	return entries, nil
}

func (m *Memory) GetJob(_ context.Context, workID string) (*types.GenerationJobState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[workID]
	if !ok {
		return nil, ErrNotFound
	}
	job := stored.state
	job.ChapterStructure, job.Questions = nil, nil
	if err := decodeJob(&job, stored.chapters, stored.questions); err != nil {
		return nil, fmt.Errorf("generation job %s: %w", workID, err)
	}
	return &job, nil
}

func (m *Memory) SaveJob(_ context.Context, job *types.GenerationJobState) error {
	chapters, questions, err := encodeJob(job)
	if err != nil {
		return err
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	state := *job
	state.ChapterStructure, state.Questions = nil, nil
	if prev, ok := m.jobs[job.WorkID]; ok && prev.state.ChaptersGenerated > state.ChaptersGenerated {
		state.ChaptersGenerated = prev.state.ChaptersGenerated
	}
	m.jobs[job.WorkID] = memoryJob{state: state, chapters: chapters, questions: questions}
	m.saves++
	return nil
}

func (m *Memory) FormattedChapters(_ context.Context, workID string) ([]types.FormattedChapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var chapters []types.FormattedChapter
	for _, c := range m.formatted[workID] {
		chapters = append(chapters, c)
	}
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Number < chapters[j].Number })
	return chapters, nil
}

func (m *Memory) SaveFormattedChapter(_ context.Context, workID string, c types.FormattedChapter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byNumber, ok := m.formatted[workID]
	if !ok {
		byNumber = make(map[int]types.FormattedChapter)
		m.formatted[workID] = byNumber
	}
	byNumber[c.Number] = c
	return nil
}

func (m *Memory) ResetFormattedChapters(_ context.Context, workID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.formatted, workID)
	return nil
}

func (m *Memory) ReplaceVirtualPages(_ context.Context, workID string, pages []types.VirtualPage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byNumber, ok := m.virtual[workID]
	if !ok {
		byNumber = make(map[int]types.VirtualPage)
		m.virtual[workID] = byNumber
	}
	last := 0
	for _, p := range pages {
		byNumber[p.PageNumber] = copyPage(p)
		last = max(last, p.PageNumber)
	}
	for n := range byNumber {
		if n > last {
			delete(byNumber, n)
		}
	}
	return nil
}

func (m *Memory) VirtualPages(_ context.Context, workID string, from, to int) ([]types.VirtualPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pages []types.VirtualPage
	for n, p := range m.virtual[workID] {
		if n < from || (to > 0 && n > to) {
			continue
		}
		pages = append(pages, copyPage(p))
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages, nil
}

func (m *Memory) Works(_ context.Context) ([]WorkSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc := newWorkAccumulator()
	for id, p := range m.pages {
		acc.get(id).SourcePages = len(p)
	}
	for id, e := range m.index {
		acc.get(id).IndexEntries = len(e)
	}
	for id, f := range m.formatted {
		acc.get(id).FormattedChapters = len(f)
	}
	for id, v := range m.virtual {
		acc.get(id).VirtualPages = len(v)
	}
	for id, j := range m.jobs {
		w := acc.get(id)
		w.TotalChapters = j.state.TotalChapters
		w.ChaptersGenerated = j.state.ChaptersGenerated
	}
	return acc.list(), nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func copyPage(p types.VirtualPage) types.VirtualPage {
	if p.ChapterNumber != nil {
		n := *p.ChapterNumber
		p.ChapterNumber = &n
	}
	return p
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQL)(nil)
)
