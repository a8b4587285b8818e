package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/newsdesk/internal/model"
)

// Postgres実装が各リポジトリインターフェースを満たすことを検証
func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
	var _ ArticleRepository = (*PostgresArticleRepo)(nil)
	var _ PublisherRepository = (*PostgresPublisherRepo)(nil)
	var _ SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)
	var _ NewsletterRepository = (*PostgresNewsletterRepo)(nil)
}

// コンストラクタがnilでないインスタンスを返すことを検証
func TestNewPostgresRepos_Initialize(t *testing.T) {
	var db *sql.DB
	if NewPostgresUserRepo(db) == nil {
		t.Error("expected non-nil user repo")
	}
	if NewPostgresSessionRepo(db) == nil {
		t.Error("expected non-nil session repo")
	}
	if NewPostgresArticleRepo(db) == nil {
		t.Error("expected non-nil article repo")
	}
	if NewPostgresPublisherRepo(db) == nil {
		t.Error("expected non-nil publisher repo")
	}
	if NewPostgresSubscriptionRepo(db) == nil {
		t.Error("expected non-nil subscription repo")
	}
	if NewPostgresNewsletterRepo(db) == nil {
		t.Error("expected non-nil newsletter repo")
	}
}

func TestEdgeTable(t *testing.T) {
	tests := []struct {
		kind    string
		table   string
		column  string
		wantErr bool
	}{
		{"publisher", "publisher_subscriptions", "publisher_id", false},
		{"journalist", "journalist_subscriptions", "journalist_id", false},
		{"editor", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			table, column, err := edgeTable(model.SubscriptionKind(tt.kind))
			if (err != nil) != tt.wantErr {
				t.Fatalf("edgeTable(%q) error = %v, wantErr %v", tt.kind, err, tt.wantErr)
			}
			if table != tt.table || column != tt.column {
				t.Errorf("edgeTable(%q) = (%q, %q), want (%q, %q)", tt.kind, table, column, tt.table, tt.column)
			}
		})
	}
}

func TestNullableID(t *testing.T) {
	if v := nullableID(""); v.Valid {
		t.Error("empty id should be NULL")
	}
	if v := nullableID("pub-1"); !v.Valid || v.String != "pub-1" {
		t.Errorf("nullableID(pub-1) = %+v", v)
	}
}

// 不正な形式のIDはデータベースに問い合わせず「該当なし」として扱われることを検証
// （dbがnilのため、問い合わせればpanicする）
func TestPostgresRepos_MalformedIDIsNotFound(t *testing.T) {
	ctx := context.Background()
	const bad = "not-a-uuid"

	articles := NewPostgresArticleRepo(nil)
	if a, err := articles.FindByID(ctx, bad); a != nil || err != nil {
		t.Errorf("FindByID = (%v, %v), want (nil, nil)", a, err)
	}
	if a, err := articles.FindApproved(ctx, bad); a != nil || err != nil {
		t.Errorf("FindApproved = (%v, %v), want (nil, nil)", a, err)
	}
	if ok, err := articles.CompareAndSetApproved(ctx, bad, bad, time.Now()); ok || err != nil {
		t.Errorf("CompareAndSetApproved = (%v, %v), want (false, nil)", ok, err)
	}
	if ok, err := articles.DeleteUnapproved(ctx, bad); ok || err != nil {
		t.Errorf("DeleteUnapproved = (%v, %v), want (false, nil)", ok, err)
	}
	if ok, err := articles.SetSocialPostID(ctx, bad, "post-1"); ok || err != nil {
		t.Errorf("SetSocialPostID = (%v, %v), want (false, nil)", ok, err)
	}

	if u, err := NewPostgresUserRepo(nil).FindByID(ctx, bad); u != nil || err != nil {
		t.Errorf("user FindByID = (%v, %v), want (nil, nil)", u, err)
	}
	if p, err := NewPostgresPublisherRepo(nil).FindByID(ctx, bad); p != nil || err != nil {
		t.Errorf("publisher FindByID = (%v, %v), want (nil, nil)", p, err)
	}

	subs := NewPostgresSubscriptionRepo(nil)
	if err := subs.Add(ctx, bad, "7b0e8a52-5f0c-4a8e-9d55-0d7e2c1f4b11", model.SubscriptionKindPublisher); !errors.Is(err, ErrSubscriberNotReader) {
		t.Errorf("Add with malformed reader: err = %v, want ErrSubscriberNotReader", err)
	}
	if err := subs.Add(ctx, "7b0e8a52-5f0c-4a8e-9d55-0d7e2c1f4b11", bad, model.SubscriptionKindJournalist); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("Add with malformed target: err = %v, want ErrTargetNotFound", err)
	}
	if ids, err := subs.SubscribersOfJournalist(ctx, bad); len(ids) != 0 || err != nil {
		t.Errorf("SubscribersOfJournalist = (%v, %v), want empty", ids, err)
	}

	letters := NewPostgresNewsletterRepo(nil)
	if n, err := letters.FindByID(ctx, bad); n != nil || err != nil {
		t.Errorf("newsletter FindByID = (%v, %v), want (nil, nil)", n, err)
	}
	if ok, err := letters.Update(ctx, &model.Newsletter{ID: bad}); ok || err != nil {
		t.Errorf("newsletter Update = (%v, %v), want (false, nil)", ok, err)
	}
	if ok, err := letters.DeleteByID(ctx, bad); ok || err != nil {
		t.Errorf("newsletter DeleteByID = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestValidID(t *testing.T) {
	if !validID("7b0e8a52-5f0c-4a8e-9d55-0d7e2c1f4b11") {
		t.Error("canonical UUID should be valid")
	}
	for _, id := range []string{"", "not-a-uuid", "P", "7b0e8a52"} {
		if validID(id) {
			t.Errorf("validID(%q) = true, want false", id)
		}
	}
}
