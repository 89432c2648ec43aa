package source

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/engineeringwithtemi/aide/internal/ai"
	"github.com/engineeringwithtemi/aide/internal/objectstore"
)

// Deps are the collaborators every source gets at construction.
type Deps struct {
	Provider ai.Provider
	Cache    CacheStore
	Objects  objectstore.Store
	Logger   *slog.Logger
}

// Params identify the source instance being built.
type Params struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Title       string
}

// Factory constructs a blank source of one type.
type Factory func(deps Deps, p Params) Source

// Registry maps type ids to factories. Registration happens explicitly at
// startup; there is no import-time magic.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a type id. Duplicate ids are a wiring
// bug and fail loudly.
func (r *Registry) Register(typeID string, f Factory) error {
	if _, ok := r.factories[typeID]; ok {
		return fmt.Errorf("source type already registered: %s", typeID)
	}
	r.factories[typeID] = f
	return nil
}

// Types returns the registered type ids, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// New builds a blank source of the given type.
func (r *Registry) New(typeID string, deps Deps, p Params) (Source, error) {
	f, ok := r.factories[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)",
			ErrUnknownType, typeID, strings.Join(r.Types(), ", "))
	}
	return f(deps, p), nil
}

// Hydrate rebuilds a source from its persisted record.
func (r *Registry) Hydrate(rec Record, deps Deps) (Source, error) {
	src, err := r.New(rec.Type, deps, Params{
		ID:          rec.ID,
		WorkspaceID: rec.WorkspaceID,
		Title:       rec.Title,
	})
	if err != nil {
		return nil, err
	}
	if err := src.Hydrate(rec); err != nil {
		return nil, fmt.Errorf("hydrating %s source %s: %w", rec.Type, rec.ID, err)
	}
	return src, nil
}

// Builtins registers the built-in source types.
func Builtins(r *Registry) error {
	return r.Register(TypePDF, NewPDF)
}
