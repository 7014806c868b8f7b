// Package store persists source pages, chapter indexes, summary job state,
// formatted chapters and virtual pages.
//
// Two implementations exist: SQL (SQLite or PostgreSQL) for the server and
// Memory for tests. Both satisfy Store.
package store

import (
	"context"
	"errors"

	"github.com/jackzampolin/lexshelf/internal/types"
)

var (
	// ErrNotFound is returned when a work has no record of the requested kind.
	ErrNotFound = errors.New("not found")

	// ErrCorrupt is returned when a persisted record cannot be decoded into
	// the expected shape.
	ErrCorrupt = errors.New("corrupt record")
)

// Store is the relational persistence used by both pipelines.
type Store interface {
	// UpsertSourcePages inserts or replaces pages by page number.
	UpsertSourcePages(ctx context.Context, workID string, pages []types.SourcePage) error
	// SourcePages returns a work's pages ordered by page number.
	SourcePages(ctx context.Context, workID string) ([]types.SourcePage, error)

	// ReplaceChapterIndex swaps the work's whole table of contents.
	ReplaceChapterIndex(ctx context.Context, workID string, entries []types.ChapterIndexEntry) error
	// ChapterIndex returns a work's index ordered by chapter number.
	ChapterIndex(ctx context.Context, workID string) ([]types.ChapterIndexEntry, error)

	// GetJob returns the summary job state or ErrNotFound.
	GetJob(ctx context.Context, workID string) (*types.GenerationJobState, error)
	// SaveJob upserts the job. ChaptersGenerated never decreases.
	SaveJob(ctx context.Context, job *types.GenerationJobState) error

	// FormattedChapters returns formatted chapters ordered by number.
	FormattedChapters(ctx context.Context, workID string) ([]types.FormattedChapter, error)
	// SaveFormattedChapter upserts one formatted chapter by number.
	SaveFormattedChapter(ctx context.Context, workID string, ch types.FormattedChapter) error
	// ResetFormattedChapters drops every formatted chapter of a work.
	ResetFormattedChapters(ctx context.Context, workID string) error

	// ReplaceVirtualPages upserts pages by global number and deletes pages
	// numbered past the last one given.
	ReplaceVirtualPages(ctx context.Context, workID string, pages []types.VirtualPage) error
	// VirtualPages returns pages in [from, to]; to <= 0 means no upper bound.
	VirtualPages(ctx context.Context, workID string, from, to int) ([]types.VirtualPage, error)

	// Works lists known work identifiers with their record counts.
	Works(ctx context.Context) ([]WorkSummary, error)

	Ping(ctx context.Context) error
	Close() error
}

// WorkSummary counts the records held for one work.
type WorkSummary struct {
	WorkID            string `json:"workId"`
	SourcePages       int    `json:"sourcePages"`
	IndexEntries      int    `json:"indexEntries"`
	FormattedChapters int    `json:"formattedChapters"`
	VirtualPages      int    `json:"virtualPages"`
	TotalChapters     int    `json:"totalChapters"`
	ChaptersGenerated int    `json:"chaptersGenerated"`
}
