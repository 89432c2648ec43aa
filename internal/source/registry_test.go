package source

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()
	if err := Builtins(r); err != nil {
		t.Fatalf("Builtins: %v", err)
	}

	types := r.Types()
	if len(types) != 1 || types[0] != TypePDF {
		t.Errorf("Types() = %v, want [pdf]", types)
	}

	src, err := r.New(TypePDF, Deps{Provider: &fakeProvider{}}, Params{ID: uuid.New(), Title: "T"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if src.Type() != TypePDF {
		t.Errorf("Type() = %q", src.Type())
	}
}

func TestRegistryUnknownType(t *testing.T) {
	r := NewRegistry()
	if err := Builtins(r); err != nil {
		t.Fatalf("Builtins: %v", err)
	}

	_, err := r.New("epub", Deps{}, Params{ID: uuid.New()})
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(TypePDF, NewPDF); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(TypePDF, NewPDF); err == nil {
		t.Error("duplicate Register succeeded")
	}
}

func TestRegistryHydrate(t *testing.T) {
	r := NewRegistry()
	if err := Builtins(r); err != nil {
		t.Fatalf("Builtins: %v", err)
	}

	rec := Record{
		ID:          uuid.New(),
		WorkspaceID: uuid.New(),
		Type:        TypePDF,
		Title:       "Restored",
		StoragePath: "x.pdf",
		Metadata:    []byte(`{"chapters":[{"id":"ch_1","title":"A","start_page":0,"end_page":2}]}`),
	}
	src, err := r.Hydrate(rec, Deps{Provider: &fakeProvider{}})
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if cc := src.ChatContext(); cc.Title != "Restored" || cc.TotalChapters != 1 {
		t.Errorf("ChatContext = %+v", cc)
	}

	rec.Type = "epub"
	if _, err := r.Hydrate(rec, Deps{}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("err = %v, want ErrUnknownType", err)
	}
}
