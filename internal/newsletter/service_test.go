package newsletter

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newTestStore は読者R、記者J・J2、編集者E、発行元Pを持つストアを作る。
func newTestStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	store := repository.NewMemoryStore()
	ctx := context.Background()
	for _, u := range []model.User{
		{ID: "R", Username: "rita", Email: "rita@example.com", Role: model.RoleReader},
		{ID: "J", Username: "jane", Email: "jane@example.com", Role: model.RoleJournalist},
		{ID: "J2", Username: "jim", Email: "jim@example.com", Role: model.RoleJournalist},
		{ID: "E", Username: "ed", Email: "ed@example.com", Role: model.RoleEditor},
	} {
		u := u
		if err := store.Users().Create(ctx, &u); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Publishers().Create(ctx, &model.Publisher{ID: "P", Name: "Daily Planet"}); err != nil {
		t.Fatal(err)
	}
	return store
}

func newTestService(store *repository.MemoryStore) *Service {
	svc := NewService(store.Newsletters(), store.Users(), store.Publishers(), testLogger())
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return svc
}

func strPtr(s string) *string { return &s }

// TestService_Create_UniqueSlugs は同じタイトルのニュースレターに連番のスラッグが付くことを検証する。
func TestService_Create_UniqueSlugs(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store)
	ctx := context.Background()

	var slugs []string
	for i := 0; i < 3; i++ {
		n, err := svc.Create(ctx, "J", CreateInput{Title: "Weekly Roundup", Content: "body", PublisherID: "P"})
		if err != nil {
			t.Fatalf("Create #%d returned error: %v", i, err)
		}
		slugs = append(slugs, n.Slug)
	}
	want := []string{"weekly-roundup", "weekly-roundup-1", "weekly-roundup-2"}
	for i := range want {
		if slugs[i] != want[i] {
			t.Errorf("slug[%d] = %q, want %q", i, slugs[i], want[i])
		}
	}

	got, err := svc.GetBySlug(ctx, "weekly-roundup-1")
	if err != nil || got.Slug != "weekly-roundup-1" {
		t.Errorf("GetBySlug = (%v, %v)", got, err)
	}
	list, _ := svc.List(ctx)
	if len(list) != 3 || list[0].Slug != "weekly-roundup-2" {
		t.Errorf("List should be newest first, got %d items starting with %q", len(list), list[0].Slug)
	}
}

func TestService_Create_Validation(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store)
	ctx := context.Background()

	tests := []struct {
		name     string
		actor    string
		in       CreateInput
		wantCode string
	}{
		{"reader denied", "R", CreateInput{Title: "t", Content: "c"}, model.ErrCodePermissionDenied},
		{"editor denied", "E", CreateInput{Title: "t", Content: "c"}, model.ErrCodePermissionDenied},
		{"missing user", "ghost", CreateInput{Title: "t", Content: "c"}, model.ErrCodeUserNotFound},
		{"empty title", "J", CreateInput{Title: "  ", Content: "c"}, model.ErrCodeValidationFailed},
		{"empty content", "J", CreateInput{Title: "t", Content: " "}, model.ErrCodeValidationFailed},
		{"unknown publisher", "J", CreateInput{Title: "t", Content: "c", PublisherID: "nope"}, model.ErrCodePublisherNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.actor, tt.in)
			if !model.HasCode(err, tt.wantCode) {
				t.Errorf("err = %v, want %s", err, tt.wantCode)
			}
		})
	}
	if list, _ := svc.List(ctx); len(list) != 0 {
		t.Errorf("nothing should be stored, got %d", len(list))
	}
}

// TestService_Create_Publish は作成と同時の発行を検証する。
func TestService_Create_Publish(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store)

	draft, err := svc.Create(context.Background(), "J", CreateInput{Title: "Draft", Content: "c"})
	if err != nil {
		t.Fatal(err)
	}
	if draft.IsPublished() || !draft.Independent() {
		t.Errorf("draft = %+v, want unpublished and independent", draft)
	}
	published, err := svc.Create(context.Background(), "J", CreateInput{Title: "Out now", Content: "c", Publish: true})
	if err != nil {
		t.Fatal(err)
	}
	if !published.IsPublished() {
		t.Error("newsletter created with Publish should be published")
	}
}

// TestService_EditPublishDelete_Access は著者と編集者だけが変更できることを検証する。
func TestService_EditPublishDelete_Access(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store)
	ctx := context.Background()
	n, err := svc.Create(ctx, "J", CreateInput{Title: "Weekly", Content: "c"})
	if err != nil {
		t.Fatal(err)
	}

	for _, actor := range []string{"R", "J2"} {
		if _, err := svc.Edit(ctx, actor, n.ID, Changes{Title: strPtr("x")}); !model.HasCode(err, model.ErrCodePermissionDenied) {
			t.Errorf("Edit by %s: err = %v, want PERMISSION_DENIED", actor, err)
		}
		if _, err := svc.Publish(ctx, actor, n.ID); !model.HasCode(err, model.ErrCodePermissionDenied) {
			t.Errorf("Publish by %s: err = %v, want PERMISSION_DENIED", actor, err)
		}
		if err := svc.Delete(ctx, actor, n.ID); !model.HasCode(err, model.ErrCodePermissionDenied) {
			t.Errorf("Delete by %s: err = %v, want PERMISSION_DENIED", actor, err)
		}
	}

	edited, err := svc.Edit(ctx, "J", n.ID, Changes{Title: strPtr("Weekly, revised"), PublisherID: strPtr("P")})
	if err != nil {
		t.Fatalf("Edit by author returned error: %v", err)
	}
	if edited.Title != "Weekly, revised" || edited.PublisherID != "P" || edited.Slug != n.Slug {
		t.Errorf("edited = %+v, slug must stay %q", edited, n.Slug)
	}

	first, err := svc.Publish(ctx, "E", n.ID)
	if err != nil {
		t.Fatalf("Publish by editor returned error: %v", err)
	}
	second, err := svc.Publish(ctx, "J", n.ID)
	if err != nil {
		t.Fatalf("second Publish returned error: %v", err)
	}
	if !first.PublishedAt.Equal(*second.PublishedAt) {
		t.Errorf("PublishedAt changed on republish: %v -> %v", first.PublishedAt, second.PublishedAt)
	}

	if _, err := svc.Edit(ctx, "J", n.ID, Changes{PublisherID: strPtr("nope")}); !model.HasCode(err, model.ErrCodePublisherNotFound) {
		t.Errorf("Edit with unknown publisher: err = %v", err)
	}

	if err := svc.Delete(ctx, "E", n.ID); err != nil {
		t.Fatalf("Delete by editor returned error: %v", err)
	}
	if _, err := svc.Get(ctx, n.ID); !model.HasCode(err, model.ErrCodeNewsletterNotFound) {
		t.Errorf("Get after delete: err = %v, want NEWSLETTER_NOT_FOUND", err)
	}
	if err := svc.Delete(ctx, "E", n.ID); !model.HasCode(err, model.ErrCodeNewsletterNotFound) {
		t.Errorf("second Delete: err = %v, want NEWSLETTER_NOT_FOUND", err)
	}
}

// TestService_AuthorWithdrawalRemovesNewsletters は著者の削除でニュースレターも消えることを検証する。
func TestService_AuthorWithdrawalRemovesNewsletters(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store)
	ctx := context.Background()
	n, err := svc.Create(ctx, "J", CreateInput{Title: "Weekly", Content: "c"})
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Users().DeleteByID(ctx, "J"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, n.ID); !model.HasCode(err, model.ErrCodeNewsletterNotFound) {
		t.Errorf("err = %v, want NEWSLETTER_NOT_FOUND", err)
	}
}
