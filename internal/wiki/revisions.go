package wiki

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"babil/internal/audio"
	"babil/internal/markup"
	"babil/internal/metrics"
	"babil/internal/models"
	"babil/internal/page"
)

// CommitRequest describes one edit of an existing page.
type CommitRequest struct {
	Page     string
	Markdown string
	Title    string
	Editor   string
	// Format overrides the markup format. Empty keeps the page's format.
	Format models.Format
}

// RevisionStore appends revisions to page histories and keeps the page cache
// in step with the newest one.
type RevisionStore struct {
	repo   page.Repository
	markup *markup.Renderer
	audio  audio.Scheduler
	logger *slog.Logger
	locks  keyedMutex

	// Clock stamps revisions. Stamps never go below the previous revision's.
	Clock func() time.Time
}

// NewRevisionStore builds a store. scheduler may be nil to disable audio.
func NewRevisionStore(repo page.Repository, renderer *markup.Renderer, scheduler audio.Scheduler, logger *slog.Logger) *RevisionStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RevisionStore{
		repo:   repo,
		markup: renderer,
		audio:  scheduler,
		logger: logger,
		Clock:  time.Now,
	}
}

// NormalizeName is the storage key for a page name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var pageNamePattern = regexp.MustCompile(`^[a-zA-Z_]+$`)

// ValidName reports whether name may name a page.
func ValidName(name string) bool {
	return pageNamePattern.MatchString(strings.TrimSpace(name))
}

func validateName(name string) error {
	err := validation.Validate(strings.TrimSpace(name),
		validation.Required.Error("the page name must not be blank"),
		validation.Match(pageNamePattern).Error("the page name may only contain letters and underscores"),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func validateContent(markdown, title, editor string) error {
	err := validation.Errors{
		"content": validation.Validate(strings.TrimSpace(markdown), validation.Required),
		"title":   validation.Validate(strings.TrimSpace(title), validation.Required),
		"editor":  validation.Validate(strings.TrimSpace(editor), validation.Required),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (s *RevisionStore) fail(op string, err error) error {
	metrics.CommitFailures.WithLabelValues(errorKind(err)).Inc()
	s.logger.Debug("commit rejected", "operation", op, "error", err)
	return err
}

// Commit appends a revision built from req to the page history.
func (s *RevisionStore) Commit(ctx context.Context, req CommitRequest) (models.Revision, error) {
	if err := validateContent(req.Markdown, req.Title, req.Editor); err != nil {
		return models.Revision{}, s.fail("edit", err)
	}
	name := NormalizeName(req.Page)

	unlock := s.locks.Lock(name)
	defer unlock()

	p, err := s.load(ctx, name)
	if err != nil {
		return models.Revision{}, s.fail("edit", err)
	}
	return s.commitLocked(ctx, p, req, "edit")
}

// Restore appends a copy of history[index] attributed to editor. Nothing in
// the existing history changes.
func (s *RevisionStore) Restore(ctx context.Context, name string, index int, editor string) (models.Revision, error) {
	name = NormalizeName(name)

	unlock := s.locks.Lock(name)
	defer unlock()

	p, err := s.load(ctx, name)
	if err != nil {
		return models.Revision{}, s.fail("restore", err)
	}
	if index < 0 || index >= len(p.History) {
		return models.Revision{}, s.fail("restore", fmt.Errorf("%w: revision %d of %q", ErrNotFound, index, name))
	}
	old := p.History[index]
	if err := validateContent(old.Markdown, old.Title, editor); err != nil {
		return models.Revision{}, s.fail("restore", err)
	}

	return s.commitLocked(ctx, p, CommitRequest{
		Page:     name,
		Markdown: old.Markdown,
		Title:    old.Title,
		Editor:   editor,
		Format:   old.Format,
	}, "restore")
}

// load fetches a page and checks it has a history. Callers hold the page lock.
func (s *RevisionStore) load(ctx context.Context, name string) (*models.Page, error) {
	p, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, storeErr(name, err)
	}
	if len(p.History) == 0 {
		s.logger.Error("page invariant violated", "page", name, "error", ErrCorrupt)
		return nil, fmt.Errorf("%w: %q", ErrCorrupt, name)
	}
	return p, nil
}

func (s *RevisionStore) commitLocked(ctx context.Context, p *models.Page, req CommitRequest, op string) (models.Revision, error) {
	latest, _ := p.Latest()

	format := req.Format
	if format == "" {
		format = latest.Format
	}
	rev, err := s.build(p.Name, len(p.History), req, format, latest.CreatedAt)
	if err != nil {
		return models.Revision{}, s.fail(op, err)
	}

	if err := s.repo.Append(ctx, p.Name, rev); err != nil {
		return models.Revision{}, s.fail(op, storeErr(p.Name, err))
	}
	metrics.Commits.WithLabelValues(op).Inc()
	s.logger.Info("revision committed", "page", p.Name, "index", rev.Index, "operation", op)

	if rev.Title != latest.Title {
		s.scheduleAudio(ctx, p.Name, rev.Title)
	}
	return rev, nil
}

// create stores a new page whose first revision is built from req.
func (s *RevisionStore) create(ctx context.Context, req CommitRequest) (*models.Page, error) {
	name := NormalizeName(req.Page)

	unlock := s.locks.Lock(name)
	defer unlock()

	rev, err := s.build(name, 0, req, req.Format, time.Time{})
	if err != nil {
		return nil, s.fail("create", err)
	}

	p := &models.Page{Name: name, History: []models.Revision{rev}}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, s.fail("create", storeErr(name, err))
	}
	metrics.Commits.WithLabelValues("create").Inc()
	s.logger.Info("page created", "page", name)

	s.scheduleAudio(ctx, name, rev.Title)

	created, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, storeErr(name, err)
	}
	return created, nil
}

// build renders req into a revision sitting at index.
func (s *RevisionStore) build(name string, index int, req CommitRequest, format models.Format, after time.Time) (models.Revision, error) {
	if format == "" {
		format = models.FormatMarkdown
	}
	out, err := s.markup.Render(req.Markdown, format)
	if errors.Is(err, markup.ErrUnknownFormat) {
		return models.Revision{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err != nil {
		return models.Revision{}, err
	}

	stamp := s.Clock().UTC()
	if stamp.Before(after) {
		stamp = after
	}

	return models.Revision{
		ID:        uuid.NewString(),
		PageName:  name,
		Index:     index,
		Title:     req.Title,
		Markdown:  req.Markdown,
		HTML:      out.HTML,
		PlainText: out.PlainText,
		Format:    format,
		Editor:    req.Editor,
		CreatedAt: stamp,
	}, nil
}

func (s *RevisionStore) scheduleAudio(ctx context.Context, name, title string) {
	if s.audio == nil {
		return
	}
	// The commit is already durable; audio must not inherit its cancellation.
	s.audio.Schedule(context.WithoutCancel(ctx), name, title)
}

// RerenderAudio schedules the audio of a page's current title again.
func (s *RevisionStore) RerenderAudio(ctx context.Context, name string) error {
	name = NormalizeName(name)
	p, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	s.scheduleAudio(ctx, name, p.Title)
	return nil
}

// History returns the revisions of a page, oldest first.
func (s *RevisionStore) History(ctx context.Context, name string) ([]models.Revision, error) {
	name = NormalizeName(name)
	p, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	return p.History, nil
}

// Revision returns history[index] of a page.
func (s *RevisionStore) Revision(ctx context.Context, name string, index int) (models.Revision, error) {
	history, err := s.History(ctx, name)
	if err != nil {
		return models.Revision{}, err
	}
	return pick(history, NormalizeName(name), index)
}
