package wiki

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"babil/internal/markup"
	"babil/internal/models"
	"babil/internal/page"
)

// CreatePageRequest describes a new page.
type CreatePageRequest struct {
	Name     string
	Markdown string
	Title    string
	Editor   string
	Format   models.Format
}

// InitialGroup lists the pages whose title starts with Letter.
type InitialGroup struct {
	Letter string
	Names  []string
}

// Catalog owns the set of pages.
type Catalog struct {
	repo      page.Repository
	revisions *RevisionStore
	markup    *markup.Renderer

	mu  sync.Mutex
	rng *rand.Rand
}

// NewCatalog builds a catalog writing through revisions.
func NewCatalog(repo page.Repository, revisions *RevisionStore, renderer *markup.Renderer) *Catalog {
	return &Catalog{
		repo:      repo,
		revisions: revisions,
		markup:    renderer,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// CreatePage validates req and stores the page with its first revision.
func (c *Catalog) CreatePage(ctx context.Context, req CreatePageRequest) (*models.Page, error) {
	if err := validateName(req.Name); err != nil {
		return nil, c.revisions.fail("create", err)
	}
	if err := validateContent(req.Markdown, req.Title, req.Editor); err != nil {
		return nil, c.revisions.fail("create", err)
	}
	return c.revisions.create(ctx, CommitRequest{
		Page:     req.Name,
		Markdown: req.Markdown,
		Title:    req.Title,
		Editor:   req.Editor,
		Format:   req.Format,
	})
}

// GetPage returns a page with its cached render and history.
func (c *Catalog) GetPage(ctx context.Context, name string) (*models.Page, error) {
	return c.revisions.load(ctx, NormalizeName(name))
}

// PageExists reports whether name is taken.
func (c *Catalog) PageExists(ctx context.Context, name string) (bool, error) {
	return c.repo.Exists(ctx, NormalizeName(name))
}

// PageCount returns the number of pages.
func (c *Catalog) PageCount(ctx context.Context) (int, error) {
	names, err := c.repo.Names(ctx)
	return len(names), err
}

// Preview renders unsaved markup. Nothing is stored.
func (c *Catalog) Preview(raw string, format models.Format) (markup.Rendered, error) {
	out, err := c.markup.Render(raw, format)
	if errors.Is(err, markup.ErrUnknownFormat) {
		return markup.Rendered{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return out, err
}

// GroupByInitial indexes page names by the case-folded first letter of their
// title, or of their name when the title is blank.
func (c *Catalog) GroupByInitial(ctx context.Context) ([]InitialGroup, error) {
	pages, err := c.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]string)
	for _, p := range pages {
		key := strings.TrimSpace(p.Title)
		if key == "" {
			key = p.Name
		}
		r, _ := utf8.DecodeRuneInString(key)
		letter := string(unicode.ToLower(r))
		groups[letter] = append(groups[letter], p.Name)
	}

	index := make([]InitialGroup, 0, len(groups))
	for letter, names := range groups {
		sort.Strings(names)
		index = append(index, InitialGroup{Letter: letter, Names: names})
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Letter < index[j].Letter })
	return index, nil
}

// RandomPage picks a page name uniformly.
func (c *Catalog) RandomPage(ctx context.Context) (string, error) {
	names, err := c.repo.Names(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrEmptyCatalog
	}
	c.mu.Lock()
	i := c.rng.IntN(len(names))
	c.mu.Unlock()
	return names[i], nil
}
