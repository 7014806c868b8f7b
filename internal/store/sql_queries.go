package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackzampolin/lexshelf/internal/types"
)

// UpsertSourcePages inserts or replaces pages by page number.
func (s *SQL) UpsertSourcePages(ctx context.Context, workID string, pages []types.SourcePage) error {
	query := s.rebind(`INSERT INTO source_pages (work_id, page_number, raw_text) VALUES (?, ?, ?)
		ON CONFLICT (work_id, page_number) DO UPDATE SET raw_text = excluded.raw_text`)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range pages {
			if _, err := tx.ExecContext(ctx, query, workID, p.PageNumber, p.RawText); err != nil {
				return fmt.Errorf("upsert source page %d: %w", p.PageNumber, err)
			}
		}
		return nil
	})
}

// SourcePages returns a work's pages ordered by page number.
func (s *SQL) SourcePages(ctx context.Context, workID string) ([]types.SourcePage, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT page_number, raw_text FROM source_pages WHERE work_id = ? ORDER BY page_number"), workID)
	if err != nil {
		return nil, fmt.Errorf("query source pages: %w", err)
	}
	defer rows.Close()

	var pages []types.SourcePage
	for rows.Next() {
		var p types.SourcePage
		if err := rows.Scan(&p.PageNumber, &p.RawText); err != nil {
			return nil, fmt.Errorf("scan source page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// ReplaceChapterIndex swaps the work's whole table of contents.
func (s *SQL) ReplaceChapterIndex(ctx context.Context, workID string, entries []types.ChapterIndexEntry) error {
	insert := s.rebind("INSERT INTO chapter_index (work_id, number, title, start_page) VALUES (?, ?, ?, ?)")
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM chapter_index WHERE work_id = ?"), workID); err != nil {
			return fmt.Errorf("clear chapter index: %w", err)
		}
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, insert, workID, e.Number, e.Title, e.StartPage); err != nil {
				return fmt.Errorf("insert index entry %d: %w", e.Number, err)
			}
		}
		return nil
	})
}

// ChapterIndex returns a work's index ordered by chapter number.
func (s *SQL) ChapterIndex(ctx context.Context, workID string) ([]types.ChapterIndexEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT number, title, start_page FROM chapter_index WHERE work_id = ? ORDER BY number"), workID)
	if err != nil {
		return nil, fmt.Errorf("query chapter index: %w", err)
	}
	defer rows.Close()

	var entries []types.ChapterIndexEntry
	for rows.Next() {
		var e types.ChapterIndexEntry
		if err := rows.Scan(&e.Number, &e.Title, &e.StartPage); err != nil {
			return nil, fmt.Errorf("scan index entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetJob returns the summary job state or ErrNotFound.
func (s *SQL) GetJob(ctx context.Context, workID string) (*types.GenerationJobState, error) {
	var (
		job       types.GenerationJobState
		chapters  string
		questions string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT work_id, title, chapter_structure, questions,
		total_chapters, chapters_generated, updated_at FROM generation_jobs WHERE work_id = ?`), workID).
		Scan(&job.WorkID, &job.Title, &chapters, &questions, &job.TotalChapters, &job.ChaptersGenerated, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query generation job: %w", err)
	}

	if err := decodeJob(&job, []byte(chapters), []byte(questions)); err != nil {
		return nil, fmt.Errorf("generation job %s: %w", workID, err)
	}
	job.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &job, nil
}

// SaveJob upserts the job. chapters_generated only moves forward.
func (s *SQL) SaveJob(ctx context.Context, job *types.GenerationJobState) error {
	chapters, questions, err := encodeJob(job)
	if err != nil {
		return err
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = time.Now().UTC()
	}
	return s.exec(ctx, `INSERT INTO generation_jobs
		(work_id, title, chapter_structure, questions, total_chapters, chapters_generated, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (work_id) DO UPDATE SET
			title = excluded.title,
			chapter_structure = excluded.chapter_structure,
			questions = excluded.questions,
			total_chapters = excluded.total_chapters,
			chapters_generated = CASE
				WHEN excluded.chapters_generated > generation_jobs.chapters_generated
				THEN excluded.chapters_generated
				ELSE generation_jobs.chapters_generated END,
			updated_at = excluded.updated_at`,
		job.WorkID, job.Title, string(chapters), string(questions),
		job.TotalChapters, job.ChaptersGenerated, job.UpdatedAt.UnixMilli())
}

// FormattedChapters returns formatted chapters ordered by number.
func (s *SQL) FormattedChapters(ctx context.Context, workID string) ([]types.FormattedChapter, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT number, title, start_page, end_page, content,
		input_chars, output_chars, rewritten FROM formatted_chapters WHERE work_id = ? ORDER BY number`), workID)
	if err != nil {
		return nil, fmt.Errorf("query formatted chapters: %w", err)
	}
	defer rows.Close()

	var chapters []types.FormattedChapter
	for rows.Next() {
		var c types.FormattedChapter
		if err := rows.Scan(&c.Number, &c.Title, &c.StartPage, &c.EndPage, &c.Content,
			&c.InputChars, &c.OutputChars, &c.Rewritten); err != nil {
			return nil, fmt.Errorf("scan formatted chapter: %w", err)
		}
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}

// SaveFormattedChapter upserts one formatted chapter by number.
func (s *SQL) SaveFormattedChapter(ctx context.Context, workID string, c types.FormattedChapter) error {
	return s.exec(ctx, `INSERT INTO formatted_chapters
		(work_id, number, title, start_page, end_page, content, input_chars, output_chars, rewritten)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (work_id, number) DO UPDATE SET
			title = excluded.title,
			start_page = excluded.start_page,
			end_page = excluded.end_page,
			content = excluded.content,
			input_chars = excluded.input_chars,
			output_chars = excluded.output_chars,
			rewritten = excluded.rewritten`,
		workID, c.Number, c.Title, c.StartPage, c.EndPage, c.Content, c.InputChars, c.OutputChars, c.Rewritten)
}

// ResetFormattedChapters drops every formatted chapter of a work.
func (s *SQL) ResetFormattedChapters(ctx context.Context, workID string) error {
	return s.exec(ctx, "DELETE FROM formatted_chapters WHERE work_id = ?", workID)
}

// ReplaceVirtualPages upserts pages and deletes pages numbered past the last one.
func (s *SQL) ReplaceVirtualPages(ctx context.Context, workID string, pages []types.VirtualPage) error {
	upsert := s.rebind(`INSERT INTO virtual_pages
		(work_id, page_number, content, is_chapter_start, chapter_title, chapter_number, cover_image_url)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (work_id, page_number) DO UPDATE SET
			content = excluded.content,
			is_chapter_start = excluded.is_chapter_start,
			chapter_title = excluded.chapter_title,
			chapter_number = excluded.chapter_number,
			cover_image_url = excluded.cover_image_url`)

	last := 0
	for _, p := range pages {
		last = max(last, p.PageNumber)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range pages {
			var number sql.NullInt64
			if p.ChapterNumber != nil {
				number = sql.NullInt64{Int64: int64(*p.ChapterNumber), Valid: true}
			}
			if _, err := tx.ExecContext(ctx, upsert, workID, p.PageNumber, p.Content, p.IsChapterStart,
				nullString(p.ChapterTitle), number, nullString(p.CoverImageURL)); err != nil {
				return fmt.Errorf("upsert virtual page %d: %w", p.PageNumber, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.rebind(
			"DELETE FROM virtual_pages WHERE work_id = ? AND page_number > ?"), workID, last); err != nil {
			return fmt.Errorf("trim virtual pages: %w", err)
		}
		return nil
	})
}

// VirtualPages returns pages in [from, to]; to <= 0 means no upper bound.
func (s *SQL) VirtualPages(ctx context.Context, workID string, from, to int) ([]types.VirtualPage, error) {
	query := `SELECT page_number, content, is_chapter_start, chapter_title, chapter_number, cover_image_url
		FROM virtual_pages WHERE work_id = ? AND page_number >= ?`
	args := []any{workID, from}
	if to > 0 {
		query += " AND page_number <= ?"
		args = append(args, to)
	}
	query += " ORDER BY page_number"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query virtual pages: %w", err)
	}
	defer rows.Close()

	var pages []types.VirtualPage
	for rows.Next() {
		var (
			p      types.VirtualPage
			title  sql.NullString
			number sql.NullInt64
			cover  sql.NullString
		)
		if err := rows.Scan(&p.PageNumber, &p.Content, &p.IsChapterStart, &title, &number, &cover); err != nil {
			return nil, fmt.Errorf("scan virtual page: %w", err)
		}
		p.ChapterTitle = title.String
		p.CoverImageURL = cover.String
		if number.Valid {
			n := int(number.Int64)
			p.ChapterNumber = &n
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// Works lists known work identifiers with their record counts.
func (s *SQL) Works(ctx context.Context) ([]WorkSummary, error) {
	acc := newWorkAccumulator()
	counts := []struct {
		query string
		set   func(*WorkSummary, int)
	}{
		{"SELECT work_id, COUNT(*) FROM source_pages GROUP BY work_id", func(w *WorkSummary, n int) { w.SourcePages = n }},
		{"SELECT work_id, COUNT(*) FROM chapter_index GROUP BY work_id", func(w *WorkSummary, n int) { w.IndexEntries = n }},
		{"SELECT work_id, COUNT(*) FROM formatted_chapters GROUP BY work_id", func(w *WorkSummary, n int) { w.FormattedChapters = n }},
		{"SELECT work_id, COUNT(*) FROM virtual_pages GROUP BY work_id", func(w *WorkSummary, n int) { w.VirtualPages = n }},
		{"SELECT work_id, total_chapters FROM generation_jobs", func(w *WorkSummary, n int) { w.TotalChapters = n }},
		{"SELECT work_id, chapters_generated FROM generation_jobs", func(w *WorkSummary, n int) { w.ChaptersGenerated = n }},
	}
	for _, c := range counts {
		if err := s.scanCounts(ctx, c.query, func(id string, n int) { c.set(acc.get(id), n) }); err != nil {
			return nil, err
		}
	}
	return acc.list(), nil
}

func (s *SQL) scanCounts(ctx context.Context, query string, fn func(string, int)) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query work counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return fmt.Errorf("scan work counts: %w", err)
		}
		fn(id, n)
	}
	return rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func encodeJob(job *types.GenerationJobState) (chapters, questions []byte, err error) {
	if job == nil || job.WorkID == "" {
		return nil, nil, fmt.Errorf("generation job requires a work id")
	}
	chapters, err = json.Marshal(nonNil(job.ChapterStructure))
	if err != nil {
		return nil, nil, fmt.Errorf("encode chapter structure: %w", err)
	}
	questions, err = json.Marshal(nonNil(job.Questions))
	if err != nil {
		return nil, nil, fmt.Errorf("encode questions: %w", err)
	}
	return chapters, questions, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
