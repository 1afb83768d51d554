package wiki

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"babil/internal/audio"
	"babil/internal/database"
	"babil/internal/markup"
	"babil/internal/models"
	"babil/internal/page"
)

type scheduled struct {
	page, text string
}

type recordingScheduler struct {
	mu    sync.Mutex
	calls []scheduled
}

func (r *recordingScheduler) Schedule(_ context.Context, pageName, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, scheduled{pageName, text})
}

func (r *recordingScheduler) Calls() []scheduled {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scheduled(nil), r.calls...)
}

// stepClock advances by step on each call, starting at 2024-03-01 12:00 UTC.
func stepClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

func backends(t *testing.T) map[string]page.Repository {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "babil.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	bdb, err := database.OpenBadger(database.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { bdb.Close() })

	return map[string]page.Repository{
		"memory": page.NewMemoryRepository(),
		"sqlite": page.NewSQLRepository(db),
		"badger": page.NewBadgerRepository(bdb),
	}
}

func newEngineOn(repo page.Repository) (*Engine, *recordingScheduler) {
	sched := &recordingScheduler{}
	e := New(repo, markup.New(), sched, nil)
	e.Revisions.Clock = stepClock(time.Second)
	return e, sched
}

// eachBackend runs fn against a fresh engine over every page repository.
func eachBackend(t *testing.T, fn func(t *testing.T, e *Engine, sched *recordingScheduler)) {
	t.Helper()
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			e, sched := newEngineOn(repo)
			fn(t, e, sched)
		})
	}
}

func create(t *testing.T, e *Engine, name, title, markdown, editor string) *models.Page {
	t.Helper()
	p, err := e.Catalog.CreatePage(context.Background(), CreatePageRequest{
		Name: name, Title: title, Markdown: markdown, Editor: editor,
	})
	require.NoError(t, err)
	return p
}

func commit(t *testing.T, e *Engine, name, title, markdown, editor string) models.Revision {
	t.Helper()
	rev, err := e.Revisions.Commit(context.Background(), CommitRequest{
		Page: name, Title: title, Markdown: markdown, Editor: editor,
	})
	require.NoError(t, err)
	return rev
}

func TestCreatePageScenario(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, sched *recordingScheduler) {
		p := create(t, e, "chat", "Le Chat", "# Bonjour", "alice")
		assert.Equal(t, "chat", p.Name)
		assert.Contains(t, p.CurrentHTML, "<h1")
		assert.Contains(t, p.CurrentHTML, "Bonjour")
		assert.Equal(t, "# Bonjour", p.CurrentMarkdown)
		require.Len(t, p.History, 1)

		results, err := e.Catalog.Search(ctx, "Bonjour", 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "chat", results[0].Name)
		assert.Equal(t, "Le Chat", results[0].Title)

		feed, err := e.Feed.LastEdits(ctx, 1)
		require.NoError(t, err)
		require.Len(t, feed, 1)
		assert.Equal(t, "chat", feed[0].PageName)

		assert.Equal(t, []scheduled{{"chat", "Le Chat"}}, sched.Calls())
	})
}

func TestCreatePageNormalizesName(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		create(t, e, "Grand_Chat", "Le Grand Chat", "miaou", "alice")

		ok, err := e.Catalog.PageExists(ctx, "grand_chat")
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = e.Catalog.CreatePage(ctx, CreatePageRequest{Name: "GRAND_CHAT", Title: "x", Markdown: "y", Editor: "bob"})
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestCreatePageTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		create(t, e, "chat", "Le Chat", "# Bonjour", "alice")
		_, err := e.Catalog.CreatePage(ctx, CreatePageRequest{Name: "chat", Title: "Autre", Markdown: "x", Editor: "bob"})
		assert.ErrorIs(t, err, ErrConflict)

		p, err := e.Catalog.GetPage(ctx, "chat")
		require.NoError(t, err)
		assert.Equal(t, "Le Chat", p.Title)
		assert.Len(t, p.History, 1)
	})
}

func TestCreatePageValidation(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		tests := []struct {
			name string
			req  CreatePageRequest
		}{
			{"blank name", CreatePageRequest{Name: "  ", Title: "T", Markdown: "m", Editor: "a"}},
			{"digits in name", CreatePageRequest{Name: "chat2", Title: "T", Markdown: "m", Editor: "a"}},
			{"slash in name", CreatePageRequest{Name: "chat/chien", Title: "T", Markdown: "m", Editor: "a"}},
			{"blank markdown", CreatePageRequest{Name: "chat", Title: "T", Markdown: " \n\t", Editor: "a"}},
			{"blank title", CreatePageRequest{Name: "chat", Title: "", Markdown: "m", Editor: "a"}},
			{"blank editor", CreatePageRequest{Name: "chat", Title: "T", Markdown: "m", Editor: ""}},
			{"unknown format", CreatePageRequest{Name: "chat", Title: "T", Markdown: "m", Editor: "a", Format: "rst"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := e.Catalog.CreatePage(ctx, tt.req)
				assert.ErrorIs(t, err, ErrValidation)
			})
		}

		n, err := e.Catalog.PageCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestCommitBlankMarkdownLeavesHistory(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		create(t, e, "chat", "Le Chat", "# Bonjour", "alice")

		_, err := e.Revisions.Commit(ctx, CommitRequest{Page: "chat", Title: "Le Chat", Markdown: "   ", Editor: "bob"})
		assert.ErrorIs(t, err, ErrValidation)

		history, err := e.Revisions.History(ctx, "chat")
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})
}

func TestCommitUnknownPage(t *testing.T) {
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		_, err := e.Revisions.Commit(context.Background(), CommitRequest{Page: "chien", Title: "T", Markdown: "m", Editor: "a"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCommitIsAppendOnlyAndCoherent(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		r := markup.New()
		create(t, e, "chat", "Le Chat", "# Bonjour", "alice")

		var seen []models.Revision
		for i, md := range []string{"*miaou*", "- un\n- deux", "[lien](https://example.org)", "ronron `code`"} {
			commit(t, e, "chat", "Le Chat", md, fmt.Sprintf("editor%d", i))

			p, err := e.Catalog.GetPage(ctx, "chat")
			require.NoError(t, err)
			require.Len(t, p.History, i+2)

			for j, old := range seen {
				assert.Equal(t, old, p.History[j], "revision %d changed", j)
			}
			seen = append([]models.Revision(nil), p.History...)

			latest := p.History[len(p.History)-1]
			want, err := r.Render(latest.Markdown, latest.Format)
			require.NoError(t, err)
			assert.Equal(t, want.HTML, p.CurrentHTML)
			assert.Equal(t, want.PlainText, p.CurrentPlainText)
			assert.Equal(t, latest.Markdown, p.CurrentMarkdown)
			assert.Equal(t, i+1, latest.Index)
		}
	})
}

func TestTimestampsNeverGoBackwards(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		e.Revisions.Clock = stepClock(-time.Minute)

		create(t, e, "chat", "Le Chat", "un", "alice")
		commit(t, e, "chat", "Le Chat", "deux", "alice")
		commit(t, e, "chat", "Le Chat", "trois", "bob")

		history, err := e.Revisions.History(ctx, "chat")
		require.NoError(t, err)
		require.Len(t, history, 3)
		for i := 1; i < len(history); i++ {
			assert.False(t, history[i].CreatedAt.Before(history[i-1].CreatedAt), "revision %d", i)
		}
	})
}

func TestConcurrentCommitsOnOnePage(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		create(t, e, "chat", "Le Chat", "zero", "alice")

		const writers = 16
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := e.Revisions.Commit(ctx, CommitRequest{
					Page: "chat", Title: "Le Chat", Markdown: fmt.Sprintf("edit %d", i), Editor: "bob",
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		history, err := e.Revisions.History(ctx, "chat")
		require.NoError(t, err)
		require.Len(t, history, writers+1)
		for i, rev := range history {
			assert.Equal(t, i, rev.Index)
			if i > 0 {
				assert.False(t, rev.CreatedAt.Before(history[i-1].CreatedAt))
			}
		}
	})
}

func TestReadsStayCoherentDuringCommits(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		create(t, e, "chat", "Le Chat", "zero", "alice")

		const commits = 100
		done := make(chan error, 1)
		go func() {
			for i := 1; i <= commits; i++ {
				_, err := e.Revisions.Commit(ctx, CommitRequest{
					Page: "chat", Title: fmt.Sprintf("Chat %d", i), Markdown: fmt.Sprintf("edit %d", i), Editor: "bob",
				})
				if err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}()

		for finished := false; !finished; {
			select {
			case err := <-done:
				require.NoError(t, err)
				finished = true
			default:
			}

			p, err := e.Catalog.GetPage(ctx, "chat")
			require.NoError(t, err)
			last := p.History[len(p.History)-1]
			assert.Equal(t, last.Markdown, p.CurrentMarkdown)
			assert.Equal(t, last.HTML, p.CurrentHTML)
			assert.Equal(t, last.Title, p.Title)

			feed, err := e.Feed.LastEdits(ctx, 1)
			require.NoError(t, err)
			require.Len(t, feed, 1)
			assert.Equal(t, feed[0].PageTitle, feed[0].Revision.Title)
		}

		history, err := e.Revisions.History(ctx, "chat")
		require.NoError(t, err)
		assert.Len(t, history, commits+1)
	})
}

func TestRestoreAppendsCopy(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		create(t, e, "chat", "Le Chat", "premier", "alice")
		commit(t, e, "chat", "Le Chat", "second", "bob")
		commit(t, e, "chat", "Le Gros Chat", "troisième", "carol")

		before, err := e.Revisions.History(ctx, "chat")
		require.NoError(t, err)

		rev, err := e.Revisions.Restore(ctx, "chat", 0, "admin")
		require.NoError(t, err)
		assert.Equal(t, 3, rev.Index)
		assert.Equal(t, "admin", rev.Editor)

		after, err := e.Revisions.History(ctx, "chat")
		require.NoError(t, err)
		require.Len(t, after, 4)
		assert.Equal(t, before[0], after[0])
		assert.Equal(t, "premier", after[3].Markdown)
		assert.Equal(t, "Le Chat", after[3].Title)

		p, err := e.Catalog.GetPage(ctx, "chat")
		require.NoError(t, err)
		assert.Equal(t, "premier", p.CurrentMarkdown)
		assert.Equal(t, "Le Chat", p.Title)
	})
}

func TestRestoreOutOfRange(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		create(t, e, "chat", "Le Chat", "premier", "alice")

		for _, idx := range []int{-1, 1, 42} {
			_, err := e.Revisions.Restore(ctx, "chat", idx, "admin")
			assert.ErrorIs(t, err, ErrNotFound, "index %d", idx)
		}
		history, err := e.Revisions.History(ctx, "chat")
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})
}

func TestAudioFollowsTitleChanges(t *testing.T) {
	eachBackend(t, func(t *testing.T, e *Engine, sched *recordingScheduler) {
		create(t, e, "chat", "Le Chat", "un", "alice")
		commit(t, e, "chat", "Le Chat", "deux", "alice")
		commit(t, e, "chat", "Le Gros Chat", "trois", "alice")

		assert.Equal(t, []scheduled{{"chat", "Le Chat"}, {"chat", "Le Gros Chat"}}, sched.Calls())

		require.NoError(t, e.Revisions.RerenderAudio(context.Background(), "chat"))
		assert.Len(t, sched.Calls(), 3)
	})
}

type brokenSynth struct{}

func (brokenSynth) Synthesize(context.Context, string, string) error {
	return errors.New("no speech engine")
}

func TestAudioFailureDoesNotFailCommit(t *testing.T) {
	ctx := context.Background()
	sink := audio.NewFileSink(t.TempDir())
	sched := audio.Inline{Renderer: audio.NewRenderer(brokenSynth{}, sink, time.Second)}
	e := New(page.NewMemoryRepository(), markup.New(), sched, nil)

	_, err := e.Catalog.CreatePage(ctx, CreatePageRequest{Name: "chat", Title: "Le Chat", Markdown: "un", Editor: "alice"})
	require.NoError(t, err)
	_, err = e.Revisions.Commit(ctx, CommitRequest{Page: "chat", Title: "Le Gros Chat", Markdown: "deux", Editor: "alice"})
	require.NoError(t, err)

	_, _, err = sink.Open("chat")
	assert.ErrorIs(t, err, audio.ErrNoArtifact)
}

func TestScriptIsEscaped(t *testing.T) {
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		p := create(t, e, "chat", "Le Chat", "<script>alert(1)</script> *miaou*", "alice")

		assert.NotContains(t, p.CurrentHTML, "<script>")
		assert.Contains(t, p.CurrentHTML, "<em>miaou</em>")
		assert.NotRegexp(t, `<[^<]+?>`, p.CurrentPlainText)
	})
}

func TestFeedCollapsesAdjacentRuns(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		create(t, e, "chat", "Le Chat", "un", "A")
		commit(t, e, "chat", "Le Chat", "deux", "A")
		commit(t, e, "chat", "Le Chat", "trois", "B")
		commit(t, e, "chat", "Le Chat", "quatre", "A")

		feed, err := e.Feed.LastEdits(ctx, 10)
		require.NoError(t, err)
		require.Len(t, feed, 3)

		assert.Equal(t, "A", feed[0].Revision.Editor)
		assert.Equal(t, 3, feed[0].Revision.Index)
		assert.Equal(t, "B", feed[1].Revision.Editor)
		assert.Equal(t, 2, feed[1].Revision.Index)
		assert.Equal(t, "A", feed[2].Revision.Editor)
		assert.Equal(t, 1, feed[2].Revision.Index)
	})
}

func TestFeedInterleavesPages(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		create(t, e, "chat", "Le Chat", "un", "A")
		create(t, e, "chien", "Le Chien", "un", "A")
		commit(t, e, "chat", "Le Chat", "deux", "A")
		commit(t, e, "chat", "Le Chat", "trois", "A")

		feed, err := e.Feed.LastEdits(ctx, 10)
		require.NoError(t, err)

		var got []string
		for _, entry := range feed {
			got = append(got, fmt.Sprintf("%s/%d", entry.PageName, entry.Revision.Index))
		}
		assert.Equal(t, []string{"chat/2", "chien/0", "chat/0"}, got)

		limited, err := e.Feed.LastEdits(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		none, err := e.Feed.LastEdits(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestFeedEqualTimestampsOrderByName(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		e.Revisions.Clock = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
		create(t, e, "chien", "Le Chien", "un", "A")
		create(t, e, "chat", "Le Chat", "un", "A")

		feed, err := e.Feed.LastEdits(ctx, 10)
		require.NoError(t, err)
		require.Len(t, feed, 2)
		assert.Equal(t, "chat", feed[0].PageName)
		assert.Equal(t, "chien", feed[1].PageName)
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		create(t, e, "chat", "Le Chat", "Le chat dort sur le **canapé**.", "A")
		create(t, e, "chien", "Le Chien", "Le chien aboie après le chat.", "A")
		create(t, e, "oiseau", "Oiseau", "Il chante & vole.", "A")

		tests := []struct {
			query string
			want  []string
		}{
			{"chat", []string{"chat", "chien"}},
			{"CANAPÉ", []string{"chat"}},
			{"chien chat", []string{"chien", "chat"}},
			{"&", []string{"oiseau"}},
			{"strong", nil},
			{"**", nil},
			{"   ", nil},
			{"girafe", nil},
		}
		for _, tt := range tests {
			t.Run(tt.query, func(t *testing.T) {
				results, err := e.Catalog.Search(ctx, tt.query, 0)
				require.NoError(t, err)
				var names []string
				for _, r := range results {
					names = append(names, r.Name)
				}
				assert.Equal(t, tt.want, names)
			})
		}

		limited, err := e.Catalog.Search(ctx, "le", 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})
}

func TestGroupByInitial(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		create(t, e, "chat", "Chat", "m", "A")
		create(t, e, "chien", "chien", "m", "A")
		create(t, e, "abeille", "Abeille", "m", "A")
		create(t, e, "zebre", "Zèbre", "m", "A")

		groups, err := e.Catalog.GroupByInitial(ctx)
		require.NoError(t, err)
		assert.Equal(t, []InitialGroup{
			{Letter: "a", Names: []string{"abeille"}},
			{Letter: "c", Names: []string{"chat", "chien"}},
			{Letter: "z", Names: []string{"zebre"}},
		}, groups)
	})
}

func TestRandomPage(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		_, err := e.Catalog.RandomPage(ctx)
		assert.ErrorIs(t, err, ErrEmptyCatalog)

		create(t, e, "chat", "Chat", "m", "A")
		create(t, e, "chien", "Chien", "m", "A")

		seen := map[string]bool{}
		for i := 0; i < 200; i++ {
			name, err := e.Catalog.RandomPage(ctx)
			require.NoError(t, err)
			seen[name] = true
		}
		assert.Equal(t, map[string]bool{"chat": true, "chien": true}, seen)
	})
}

func TestPreviewDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		out, err := e.Catalog.Preview("# Salut", models.FormatMarkdown)
		require.NoError(t, err)
		assert.Contains(t, out.HTML, "Salut")

		_, err = e.Catalog.Preview("x", "rst")
		assert.ErrorIs(t, err, ErrValidation)

		n, err := e.Catalog.PageCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestDiff(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, func(t *testing.T, e *Engine, _ *recordingScheduler) {
		create(t, e, "chat", "Le Chat", "le chat dort", "A")
		commit(t, e, "chat", "Le Chat", "le chat mange", "B")

		segments, err := e.Revisions.Diff(ctx, "chat", 0, 1)
		require.NoError(t, err)

		var from, to string
		for _, s := range segments {
			if s.Op != DiffInsert {
				from += s.Text
			}
			if s.Op != DiffDelete {
				to += s.Text
			}
		}
		assert.Equal(t, "le chat dort", from)
		assert.Equal(t, "le chat mange", to)
		assert.Equal(t, DiffEqual, segments[0].Op)

		_, err = e.Revisions.Diff(ctx, "chat", 0, 5)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = e.Revisions.Diff(ctx, "chien", 0, 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

type emptyHistoryRepo struct {
	page.Repository
}

func (emptyHistoryRepo) Get(context.Context, string) (*models.Page, error) {
	return &models.Page{Name: "chat"}, nil
}

func TestCorruptPageIsReported(t *testing.T) {
	e := New(emptyHistoryRepo{page.NewMemoryRepository()}, markup.New(), nil, nil)
	_, err := e.Catalog.GetPage(context.Background(), "chat")
	assert.ErrorIs(t, err, ErrCorrupt)
}
