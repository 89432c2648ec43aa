package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestWorkspace(t *testing.T, s *Store) Workspace {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	w := Workspace{ID: uuid.NewString(), Name: "Study", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateWorkspace(context.Background(), w); err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	return w
}

func createTestSource(t *testing.T, s *Store, workspaceID string) Source {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	src := Source{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Type:        "pdf",
		Title:       "Biology 101",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.CreateSource(context.Background(), src); err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	return src
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestWorkspaceCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w := createTestWorkspace(t, s)

	got, err := s.GetWorkspace(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWorkspace: %v", err)
	}
	if got.Name != "Study" || !got.CreatedAt.Equal(w.CreatedAt) {
		t.Errorf("GetWorkspace = %+v", got)
	}

	if err := s.RenameWorkspace(ctx, w.ID, "Renamed"); err != nil {
		t.Fatalf("RenameWorkspace: %v", err)
	}
	got, _ = s.GetWorkspace(ctx, w.ID)
	if got.Name != "Renamed" {
		t.Errorf("Name after rename = %q", got.Name)
	}

	all, err := s.ListWorkspaces(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("ListWorkspaces = %v, %v", all, err)
	}

	if err := s.DeleteWorkspace(ctx, w.ID); err != nil {
		t.Fatalf("DeleteWorkspace: %v", err)
	}
	if _, err := s.GetWorkspace(ctx, w.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetWorkspace after delete: %v", err)
	}
	if err := s.DeleteWorkspace(ctx, w.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: %v", err)
	}
}

func TestSourceContentAndMetadata(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	w := createTestWorkspace(t, s)
	src := createTestSource(t, s, w.ID)

	got, err := s.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if got.StoragePath != "" || got.Metadata != "{}" {
		t.Errorf("fresh source = %+v", got)
	}

	meta := `{"chapters":[{"id":"ch_1","title":"Cells","start_page":0,"end_page":4}]}`
	if err := s.UpdateSourceContent(ctx, src.ID, "abc.pdf", meta); err != nil {
		t.Fatalf("UpdateSourceContent: %v", err)
	}
	got, _ = s.GetSource(ctx, src.ID)
	if got.StoragePath != "abc.pdf" || got.Metadata != meta {
		t.Errorf("after content update = %+v", got)
	}

	list, err := s.ListSources(ctx, w.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListSources = %v, %v", list, err)
	}

	if err := s.UpdateSourceTitle(ctx, src.ID, "New Title"); err != nil {
		t.Fatalf("UpdateSourceTitle: %v", err)
	}
	got, _ = s.GetSource(ctx, src.ID)
	if got.Title != "New Title" {
		t.Errorf("Title = %q", got.Title)
	}
}

// TestSourceCacheColumns verifies the handle columns are set together and
// cleared together.
func TestSourceCacheColumns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	w := createTestWorkspace(t, s)
	src := createTestSource(t, s, w.ID)

	cacheID := "caches/xyz"
	expires := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	if err := s.UpdateSourceCache(ctx, src.ID, &cacheID, &expires); err != nil {
		t.Fatalf("UpdateSourceCache: %v", err)
	}

	got, _ := s.GetSource(ctx, src.ID)
	if got.CacheID == nil || *got.CacheID != cacheID {
		t.Errorf("CacheID = %v", got.CacheID)
	}
	if got.CacheExpiresAt == nil || !got.CacheExpiresAt.Equal(expires) {
		t.Errorf("CacheExpiresAt = %v", got.CacheExpiresAt)
	}

	if err := s.UpdateSourceCache(ctx, src.ID, nil, nil); err != nil {
		t.Fatalf("clearing cache: %v", err)
	}
	got, _ = s.GetSource(ctx, src.ID)
	if got.CacheID != nil || got.CacheExpiresAt != nil {
		t.Errorf("cache not cleared: %+v", got)
	}

	if err := s.UpdateSourceCache(ctx, uuid.NewString(), &cacheID, &expires); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown source: %v", err)
	}
}

func TestLabLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	w := createTestWorkspace(t, s)
	src := createTestSource(t, s, w.ID)

	now := time.Now().UTC().Truncate(time.Second)
	l := Lab{
		ID:               uuid.NewString(),
		WorkspaceID:      w.ID,
		SourceID:         src.ID,
		Type:             "quiz_lab",
		GeneratedContent: `{"title":"Quiz"}`,
		Status:           "in_progress",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.CreateLab(ctx, l); err != nil {
		t.Fatalf("CreateLab: %v", err)
	}

	got, err := s.GetLab(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetLab: %v", err)
	}
	if got.Type != "quiz_lab" || got.GeneratedContent != `{"title":"Quiz"}` || got.UserState != "{}" {
		t.Errorf("GetLab = %+v", got)
	}

	if err := s.UpdateLabState(ctx, l.ID, `{"answers":[1]}`, "completed"); err != nil {
		t.Fatalf("UpdateLabState: %v", err)
	}
	got, _ = s.GetLab(ctx, l.ID)
	if got.UserState != `{"answers":[1]}` || got.Status != "completed" {
		t.Errorf("after state update = %+v", got)
	}

	bySource, err := s.ListLabsBySource(ctx, src.ID)
	if err != nil || len(bySource) != 1 {
		t.Fatalf("ListLabsBySource = %v, %v", bySource, err)
	}
	byWorkspace, err := s.ListLabsByWorkspace(ctx, w.ID)
	if err != nil || len(byWorkspace) != 1 {
		t.Fatalf("ListLabsByWorkspace = %v, %v", byWorkspace, err)
	}

	if err := s.DeleteLab(ctx, l.ID); err != nil {
		t.Fatalf("DeleteLab: %v", err)
	}
	if _, err := s.GetLab(ctx, l.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetLab after delete: %v", err)
	}
}

// TestCascadeDelete verifies deleting a workspace removes its sources,
// labs, and chat history through foreign keys.
func TestCascadeDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	w := createTestWorkspace(t, s)
	src := createTestSource(t, s, w.ID)

	now := time.Now().UTC().Truncate(time.Second)
	l := Lab{ID: uuid.NewString(), WorkspaceID: w.ID, SourceID: src.ID, Type: "quiz_lab", Status: "in_progress", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateLab(ctx, l); err != nil {
		t.Fatalf("CreateLab: %v", err)
	}
	m := ChatMessage{ID: uuid.NewString(), WorkspaceID: w.ID, Role: "user", Content: "hi", CreatedAt: now}
	if err := s.SaveChatMessage(ctx, m); err != nil {
		t.Fatalf("SaveChatMessage: %v", err)
	}

	if err := s.DeleteWorkspace(ctx, w.ID); err != nil {
		t.Fatalf("DeleteWorkspace: %v", err)
	}
	if _, err := s.GetSource(ctx, src.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("source survived cascade: %v", err)
	}
	if _, err := s.GetLab(ctx, l.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("lab survived cascade: %v", err)
	}
	msgs, err := s.ListChatMessages(ctx, w.ID, 10)
	if err != nil {
		t.Fatalf("ListChatMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("chat survived cascade: %v", msgs)
	}
}

func TestChatMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	w := createTestWorkspace(t, s)

	base := time.Now().UTC().Truncate(time.Second)
	for i, content := range []string{"first", "second", "third"} {
		m := ChatMessage{
			ID:          uuid.NewString(),
			WorkspaceID: w.ID,
			Role:        "user",
			Content:     content,
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		if err := s.SaveChatMessage(ctx, m); err != nil {
			t.Fatalf("SaveChatMessage: %v", err)
		}
	}

	msgs, err := s.ListChatMessages(ctx, w.ID, 2)
	if err != nil {
		t.Fatalf("ListChatMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "first" || msgs[1].Content != "second" {
		t.Errorf("msgs = %+v", msgs)
	}
}
