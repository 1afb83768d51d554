package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"babil/internal/models"
)

var (
	// ErrPermission is returned when an identity lacks a capability.
	ErrPermission = errors.New("permission denied")
	// ErrBlankToken is returned for an empty or whitespace token.
	ErrBlankToken = errors.New("identity token must not be blank")
)

// Capability is something an identity may be allowed to do.
type Capability int

const (
	// CapWrite allows creating and editing pages.
	CapWrite Capability = iota
	// CapRestore allows restoring an old revision. It implies CapWrite.
	CapRestore
)

func (c Capability) String() string {
	switch c {
	case CapWrite:
		return "write"
	case CapRestore:
		return "restore"
	}
	return fmt.Sprintf("capability(%d)", int(c))
}

// Profile is what the user page shows.
type Profile struct {
	Identity      models.Identity
	Modifications []models.Modification
}

// Gate answers permission questions about tokens.
type Gate struct {
	repo       Repository
	hashTokens bool

	// Clock stamps new identities and modifications.
	Clock func() time.Time
}

// NewGate returns a gate over repo. With hashTokens the repository only ever
// sees a BLAKE2b-256 digest of each token.
func NewGate(repo Repository, hashTokens bool) *Gate {
	return &Gate{repo: repo, hashTokens: hashTokens, Clock: time.Now}
}

// Key is the repository key for token.
func (g *Gate) Key(token string) string {
	if !g.hashTokens {
		return token
	}
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Login finds the identity for token, registering it when unknown. New
// identities cannot write until a moderator grants it.
func (g *Gate) Login(ctx context.Context, token string) (*models.Identity, bool, error) {
	if strings.TrimSpace(token) == "" {
		return nil, false, ErrBlankToken
	}
	key := g.Key(token)

	id, err := g.repo.Find(ctx, key)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	id = &models.Identity{Token: key, CreatedAt: g.Clock().UTC()}
	err = g.repo.Create(ctx, id)
	if errors.Is(err, ErrExists) {
		// Lost a registration race; the winner's record is just as good.
		id, err = g.repo.Find(ctx, key)
		return id, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return id, true, nil
}

func (g *Gate) lookup(ctx context.Context, token string) (*models.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNotFound
	}
	return g.repo.Find(ctx, g.Key(token))
}

// IsWriteAllowed reports whether token may edit pages. Unknown tokens may not.
func (g *Gate) IsWriteAllowed(ctx context.Context, token string) (bool, error) {
	id, err := g.lookup(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return id.WriteAllowed, nil
}

// IsAdmin reports whether token holds the admin flag.
func (g *Gate) IsAdmin(ctx context.Context, token string) (bool, error) {
	id, err := g.lookup(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return id.IsAdmin, nil
}

// Authorize returns ErrPermission unless token holds capability.
func (g *Gate) Authorize(ctx context.Context, token string, capability Capability) error {
	id, err := g.lookup(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s requires a known identity", ErrPermission, capability)
	}
	if err != nil {
		return err
	}
	if !id.WriteAllowed || (capability == CapRestore && !id.IsAdmin) {
		return fmt.Errorf("%w: %s", ErrPermission, capability)
	}
	return nil
}

// RecordModification appends pageName to the edit log of token.
func (g *Gate) RecordModification(ctx context.Context, token, pageName string) error {
	return g.repo.AddModification(ctx, g.Key(token), models.Modification{PageName: pageName, At: g.Clock().UTC()})
}

// Grant sets the moderation flags of token, registering it if needed.
func (g *Gate) Grant(ctx context.Context, token string, writeAllowed, isAdmin bool) error {
	if _, _, err := g.Login(ctx, token); err != nil {
		return err
	}
	return g.repo.SetFlags(ctx, g.Key(token), writeAllowed, isAdmin)
}

// Profile returns the identity stored under key together with its latest
// modifications. key is what Key returns, so profile URLs never carry a raw
// token when hashing is on.
func (g *Gate) Profile(ctx context.Context, key string, limit int) (*Profile, error) {
	id, err := g.repo.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	edits, err := g.repo.Modifications(ctx, key, limit)
	if err != nil {
		return nil, err
	}
	return &Profile{Identity: *id, Modifications: edits}, nil
}
