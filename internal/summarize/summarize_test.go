package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/lexshelf/internal/objstore"
	"github.com/jackzampolin/lexshelf/internal/prompts"
	"github.com/jackzampolin/lexshelf/internal/prompts/summary"
	"github.com/jackzampolin/lexshelf/internal/providers"
	"github.com/jackzampolin/lexshelf/internal/store"
	"github.com/jackzampolin/lexshelf/internal/types"
)

// structureJSON is a schema-valid structure response with n chapters.
func structureJSON(n int) string {
	var res summary.Result
	for i := 1; i <= n; i++ {
		res.Chapters = append(res.Chapters, summary.ChapterSummary{
			Number:          i,
			Title:           fmt.Sprintf("Chapter %d", i),
			Summary:         fmt.Sprintf("Summary of chapter %d.", i),
			KeyPoints:       []string{"point"},
			ImagePrompt:     "A courtroom.",
			NarrationScript: fmt.Sprintf("Today we cover chapter %d.", i),
		})
	}
	res.Questions = []types.Question{{ChapterNumber: 1, Prompt: "Which?", Options: []string{"a", "b"}, AnswerIndex: 1}}
	b, _ := json.Marshal(res)
	return "```json\n" + string(b) + "\n```"
}

// seedWork stores two pages per chapter and a matching index.
func seedWork(t *testing.T, st store.Store, workID string, chapters int, withIndex bool) {
	t.Helper()
	ctx := context.Background()
	var pages []types.SourcePage
	var index []types.ChapterIndexEntry
	for c := 1; c <= chapters; c++ {
		first := 2*c - 1
		pages = append(pages,
			types.SourcePage{PageNumber: first, RawText: fmt.Sprintf("Chapter %d opening text about duties of care.", c)},
			types.SourcePage{PageNumber: first + 1, RawText: fmt.Sprintf("Chapter %d closing text about remedies.", c)},
		)
		index = append(index, types.ChapterIndexEntry{Number: c, Title: fmt.Sprintf("Chapter %d", c), StartPage: first})
	}
	if err := st.UpsertSourcePages(ctx, workID, pages); err != nil {
		t.Fatal(err)
	}
	if withIndex {
		if err := st.ReplaceChapterIndex(ctx, workID, index); err != nil {
			t.Fatal(err)
		}
	}
}

type fakeRecorder struct {
	mu          sync.Mutex
	budgetStops int
	media       map[string]int
	outcomes    []string
}

func (r *fakeRecorder) BudgetStop(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.budgetStops++
}

func (r *fakeRecorder) MediaResult(kind string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.media == nil {
		r.media = make(map[string]int)
	}
	r.media[fmt.Sprintf("%s:%t", kind, ok)]++
}

func (r *fakeRecorder) Invocation(_, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

type fixture struct {
	orch     *Orchestrator
	store    *store.Memory
	objects  *objstore.Memory
	backend  *providers.MockBackend
	recorder *fakeRecorder
}

func newFixture(t *testing.T, chapters int, opts Options) *fixture {
	t.Helper()
	backend := providers.NewMockBackend("")
	backend.Respond = func(call providers.MockCall) (string, error) {
		switch call.Kind {
		case providers.KindText:
			return structureJSON(chapters), nil
		case providers.KindImage:
			return "png-bytes", nil
		default:
			return "mp3-bytes", nil
		}
	}
	client := providers.NewClient(providers.NewMockRegistry(backend, "key-a"), providers.ClientConfig{})

	resolver := prompts.NewResolver(nil)
	summary.RegisterPrompts(resolver)

	f := &fixture{
		store:    store.NewMemory(),
		objects:  objstore.NewMemory(),
		backend:  backend,
		recorder: &fakeRecorder{},
	}
	opts.Recorder = f.recorder
	orch, err := New(f.store, f.objects, client, resolver, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.orch = orch
	return f
}

func TestRun_BatchesToCompletion(t *testing.T) {
	f := newFixture(t, 23, Options{BatchSize: 5})
	seedWork(t, f.store, "torts", 23, true)
	ctx := context.Background()

	wantGenerated := []int{5, 10, 15, 20, 23}
	for batch, want := range wantGenerated {
		resp, err := f.orch.Run(ctx, Request{WorkID: "torts", Title: "Torts", BatchIndex: batch})
		if err != nil {
			t.Fatalf("batch %d: Run() error = %v", batch, err)
		}
		if resp.ChaptersGenerated != want {
			t.Errorf("batch %d: chaptersGenerated = %d, want %d", batch, resp.ChaptersGenerated, want)
		}
		if resp.TotalChapters != 23 {
			t.Errorf("batch %d: totalChapters = %d, want 23", batch, resp.TotalChapters)
		}
		last := batch == len(wantGenerated)-1
		if last {
			if resp.NextBatch != nil || !resp.BatchComplete {
				t.Errorf("final batch: nextBatch = %v, batchComplete = %v", resp.NextBatch, resp.BatchComplete)
			}
		} else if resp.NextBatch == nil || *resp.NextBatch != batch+1 {
			t.Errorf("batch %d: nextBatch = %v, want %d", batch, resp.NextBatch, batch+1)
		}
		if resp.RequestID == "" {
			t.Error("missing request id")
		}
	}

	if got := f.backend.CallCount(providers.KindText); got != 1 {
		t.Errorf("structure calls = %d, want 1", got)
	}
	if got := f.backend.CallCount(providers.KindImage); got != 23 {
		t.Errorf("image calls = %d, want 23", got)
	}
	if got := f.objects.Len(); got != 46 {
		t.Errorf("stored objects = %d, want 46", got)
	}

	job, err := f.store.GetJob(ctx, "torts")
	if err != nil {
		t.Fatal(err)
	}
	for _, ch := range job.ChapterStructure {
		if !ch.MediaAttempted || ch.ImageURL == "" || ch.AudioURL == "" {
			t.Fatalf("chapter %d media = %+v", ch.Number, ch)
		}
	}
	if want := "mem://objects/works/torts/chapters/1/cover.png"; job.ChapterStructure[0].ImageURL != want {
		t.Errorf("image url = %q, want %q", job.ChapterStructure[0].ImageURL, want)
	}
	if job.ChapterStructure[2].Summary != "Summary of chapter 3." || job.ChapterStructure[2].StartPage != 5 {
		t.Errorf("chapter 3 = %+v", job.ChapterStructure[2])
	}
}

func TestRun_CompletedJobIsCached(t *testing.T) {
	f := newFixture(t, 3, Options{BatchSize: 5})
	seedWork(t, f.store, "contracts", 3, true)
	ctx := context.Background()

	if _, err := f.orch.Run(ctx, Request{WorkID: "contracts"}); err != nil {
		t.Fatal(err)
	}
	f.backend.Reset()
	saves := f.store.JobSaves()

	resp, err := f.orch.Run(ctx, Request{WorkID: "contracts", BatchIndex: 0})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Cached || !resp.BatchComplete || resp.NextBatch != nil {
		t.Errorf("response = cached %v complete %v next %v", resp.Cached, resp.BatchComplete, resp.NextBatch)
	}
	if len(f.backend.Calls()) != 0 {
		t.Errorf("cached run made %d provider calls", len(f.backend.Calls()))
	}
	if f.store.JobSaves() != saves {
		t.Error("cached run wrote the job")
	}
	if len(resp.ChapterStructure) != 3 || len(resp.Questions) != 1 {
		t.Errorf("cached structure = %d chapters, %d questions", len(resp.ChapterStructure), len(resp.Questions))
	}
}

func TestRun_StructureFailure(t *testing.T) {
	tests := []struct {
		name    string
		respond func(providers.MockCall) (string, error)
	}{
		{
			name: "providers exhausted",
			respond: func(providers.MockCall) (string, error) {
				return "", providers.MockStatus(503)
			},
		},
		{
			name: "output never matches schema",
			respond: func(providers.MockCall) (string, error) {
				return `{"chapters":[]}`, nil
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 2, Options{})
			f.backend.Respond = tt.respond
			seedWork(t, f.store, "evidence", 2, true)

			_, err := f.orch.Run(context.Background(), Request{WorkID: "evidence"})
			if !errors.Is(err, ErrStructureFailed) {
				t.Fatalf("Run() error = %v, want ErrStructureFailed", err)
			}
			if _, err := f.store.GetJob(context.Background(), "evidence"); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("job persisted after failure: %v", err)
			}
			if f.backend.CallCount(providers.KindImage) != 0 {
				t.Error("media generated without a structure")
			}
		})
	}
}

func TestRun_StructureNullOptionalFields(t *testing.T) {
	f := newFixture(t, 1, Options{})
	f.backend.Respond = func(call providers.MockCall) (string, error) {
		if call.Kind == providers.KindText {
			return `{"chapters":[{"number":1,"title":"Chapter 1","summary":"Duties of care.","keyPoints":["duty"],
				"citations":null,"practiceExamples":null,"imagePrompt":null,"narrationScript":"Welcome."}],
				"questions":[{"prompt":"Which?","options":["a","b"],"answerIndex":0,"explanation":null}]}`, nil
		}
		return "bytes", nil
	}
	seedWork(t, f.store, "torts", 1, true)

	resp, err := f.orch.Run(context.Background(), Request{WorkID: "torts"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(resp.ChapterStructure) != 1 {
		t.Fatalf("structure = %d chapters", len(resp.ChapterStructure))
	}
	ch := resp.ChapterStructure[0]
	if ch.Citations == nil || len(ch.Citations) != 0 {
		t.Errorf("citations = %#v, want empty slice", ch.Citations)
	}
	if ch.PracticeExamples == nil || len(ch.PracticeExamples) != 0 {
		t.Errorf("practice examples = %#v, want empty slice", ch.PracticeExamples)
	}
	if f.backend.CallCount(providers.KindText) != 1 {
		t.Errorf("structure calls = %d, want 1", f.backend.CallCount(providers.KindText))
	}
}

func TestRun_NoContent(t *testing.T) {
	f := newFixture(t, 1, Options{})
	_, err := f.orch.Run(context.Background(), Request{WorkID: "empty"})
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("Run() error = %v, want ErrNoContent", err)
	}
}

func TestRun_InvalidRequest(t *testing.T) {
	f := newFixture(t, 1, Options{})
	for _, req := range []Request{{}, {WorkID: "x", BatchIndex: -1}} {
		if _, err := f.orch.Run(context.Background(), req); err == nil {
			t.Errorf("Run(%+v) expected error", req)
		}
	}
}

func TestRun_MediaFailureIsAbsorbed(t *testing.T) {
	f := newFixture(t, 2, Options{})
	f.backend.Respond = func(call providers.MockCall) (string, error) {
		switch call.Kind {
		case providers.KindText:
			return structureJSON(2), nil
		case providers.KindImage:
			return "", errors.New("safety filter")
		default:
			return "mp3-bytes", nil
		}
	}
	seedWork(t, f.store, "property", 2, true)

	resp, err := f.orch.Run(context.Background(), Request{WorkID: "property"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !resp.BatchComplete || resp.ChaptersGenerated != 2 {
		t.Fatalf("response = %+v", resp)
	}
	for _, ch := range resp.ChapterStructure {
		if ch.ImageURL != "" || ch.AudioURL == "" || !ch.MediaAttempted {
			t.Errorf("chapter %d: image %q audio %q attempted %v", ch.Number, ch.ImageURL, ch.AudioURL, ch.MediaAttempted)
		}
	}
	if f.recorder.media["image:false"] != 2 || f.recorder.media["narration:true"] != 2 {
		t.Errorf("media results = %v", f.recorder.media)
	}
}

// steppingClock advances by step on every reading.
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func TestRun_BudgetStopsBetweenChapters(t *testing.T) {
	clock := &steppingClock{now: time.Unix(0, 0), step: 20 * time.Second}
	f := newFixture(t, 5, Options{
		BatchSize: 5,
		Deadline:  85 * time.Second,
		Margin:    75 * time.Second,
		Clock:     clock.Now,
	})
	ctx := context.Background()

	// Seed the structure so only the media loop reads the clock.
	job := &types.GenerationJobState{WorkID: "tax", TotalChapters: 5}
	for i := 1; i <= 5; i++ {
		job.ChapterStructure = append(job.ChapterStructure, types.Chapter{
			Number: i, Title: fmt.Sprintf("Chapter %d", i), Summary: "A summary.", ImagePrompt: "Ledger books.",
		})
	}
	job.Normalize()
	if err := f.store.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	// Each invocation starts two chapters, then the margin is crossed.
	for i, want := range []int{2, 4, 5} {
		resp, err := f.orch.Run(ctx, Request{WorkID: "tax", BatchIndex: 0})
		if err != nil {
			t.Fatal(err)
		}
		if resp.ChaptersGenerated != want {
			t.Errorf("invocation %d: chaptersGenerated = %d, want %d", i, resp.ChaptersGenerated, want)
		}
		stopped := want < 5
		if resp.BudgetStopped != stopped {
			t.Errorf("invocation %d: budgetStopped = %v, want %v", i, resp.BudgetStopped, stopped)
		}
		if stopped && (resp.NextBatch == nil || *resp.NextBatch != 0) {
			t.Errorf("invocation %d: nextBatch = %v, want 0", i, resp.NextBatch)
		}
	}
	if f.recorder.budgetStops != 2 {
		t.Errorf("budget stops = %d, want 2", f.recorder.budgetStops)
	}
	if got := f.backend.CallCount(providers.KindText); got != 0 {
		t.Errorf("structure calls = %d, want 0", got)
	}
}

func TestRun_ModelDefinedChapters(t *testing.T) {
	f := newFixture(t, 3, Options{})
	seedWork(t, f.store, "civpro", 1, false)

	resp, err := f.orch.Run(context.Background(), Request{WorkID: "civpro", ExpectedTotalChapters: 3})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalChapters != 3 || len(resp.ChapterStructure) != 3 {
		t.Fatalf("totalChapters = %d, structure = %d", resp.TotalChapters, len(resp.ChapterStructure))
	}
	for i, ch := range resp.ChapterStructure {
		if ch.Number != i+1 || ch.Title != fmt.Sprintf("Chapter %d", i+1) || ch.StartPage != 1 || ch.EndPage != 2 {
			t.Errorf("chapter %d = %+v", i, ch)
		}
	}
	prompt := f.backend.Calls()[0].Input
	if !strings.Contains(prompt, "3") {
		t.Errorf("structure prompt does not ask for 3 chapters: %q", prompt)
	}
}
