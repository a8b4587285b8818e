package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
)

func newTestStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	store := repository.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	for _, u := range []model.User{
		{ID: "r1", Username: "reader", Role: model.RoleReader},
		{ID: "j1", Username: "journalist", Role: model.RoleJournalist},
		{ID: "e1", Username: "editor", Role: model.RoleEditor},
	} {
		u.CreatedAt, u.UpdatedAt = now, now
		if err := store.Users().Create(ctx, &u); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Publishers().Create(ctx, &model.Publisher{ID: "p1", Name: "Daily Planet"}); err != nil {
		t.Fatal(err)
	}
	return store
}

func newTestService(store *repository.MemoryStore) *Service {
	return NewService(store.Subscriptions(), store.Users(), store.Publishers(), nil)
}

// TestService_Subscribe_Reader は読者が発行元と記者を購読できることを検証する。
func TestService_Subscribe_Reader(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store)
	ctx := context.Background()

	if err := svc.Subscribe(ctx, "r1", "p1", model.SubscriptionKindPublisher); err != nil {
		t.Fatalf("Subscribe publisher returned error: %v", err)
	}
	if err := svc.Subscribe(ctx, "r1", "j1", model.SubscriptionKindJournalist); err != nil {
		t.Fatalf("Subscribe journalist returned error: %v", err)
	}
	if err := svc.Subscribe(ctx, "r1", "j1", model.SubscriptionKindJournalist); err != nil {
		t.Fatalf("repeated Subscribe should succeed: %v", err)
	}

	edges, err := svc.ListForReader(ctx, "r1")
	if err != nil {
		t.Fatalf("ListForReader returned error: %v", err)
	}
	if len(edges) != 2 {
		t.Errorf("expected 2 edges, got %d", len(edges))
	}
}

// TestService_Subscribe_NonReaderDenied は記者と編集者の購読が拒否されることを検証する。
func TestService_Subscribe_NonReaderDenied(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store)

	for _, actor := range []string{"j1", "e1"} {
		err := svc.Subscribe(context.Background(), actor, "p1", model.SubscriptionKindPublisher)
		if !model.HasCode(err, model.ErrCodePermissionDenied) {
			t.Errorf("Subscribe by %s: err = %v, want PERMISSION_DENIED", actor, err)
		}
	}
	ids, _ := store.Subscriptions().SubscribersOfPublisher(context.Background(), "p1")
	if len(ids) != 0 {
		t.Errorf("no edge should be written, got %v", ids)
	}
}

func TestService_Subscribe_TargetValidation(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store)
	ctx := context.Background()

	tests := []struct {
		name     string
		targetID string
		kind     model.SubscriptionKind
		wantCode string
	}{
		{"missing publisher", "p-missing", model.SubscriptionKindPublisher, model.ErrCodePublisherNotFound},
		{"missing journalist", "j-missing", model.SubscriptionKindJournalist, model.ErrCodeJournalistNotFound},
		{"editor as journalist", "e1", model.SubscriptionKindJournalist, model.ErrCodeJournalistNotFound},
		{"unknown kind", "p1", model.SubscriptionKind("topic"), model.ErrCodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Subscribe(ctx, "r1", tt.targetID, tt.kind)
			if !model.HasCode(err, tt.wantCode) {
				t.Errorf("err = %v, want %s", err, tt.wantCode)
			}
		})
	}

	if err := svc.Subscribe(ctx, "ghost", "p1", model.SubscriptionKindPublisher); !model.HasCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("unknown reader: err = %v, want USER_NOT_FOUND", err)
	}
}

// demotingUserRepo はFindByIDの直後に対象ユーザーの役割を変更するUserRepository。
// 権限確認と書き込みの間に役割変更が割り込む状況を再現する。
type demotingUserRepo struct {
	repository.UserRepository
	store  *repository.MemoryStore
	userID string
	role   model.Role
}

func (r *demotingUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := r.UserRepository.FindByID(ctx, id)
	if err != nil || id != r.userID {
		return u, err
	}
	if err := r.store.Users().UpdateRole(ctx, r.userID, r.role); err != nil {
		return nil, err
	}
	return u, nil
}

// TestService_Subscribe_RoleChangedBeforeWrite は確認後に読者でなくなった場合に辺が書かれないことを検証する。
func TestService_Subscribe_RoleChangedBeforeWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	users := &demotingUserRepo{UserRepository: store.Users(), store: store, userID: "r1", role: model.RoleEditor}
	svc := NewService(store.Subscriptions(), users, store.Publishers(), nil)

	err := svc.Subscribe(ctx, "r1", "p1", model.SubscriptionKindPublisher)
	if !model.HasCode(err, model.ErrCodePermissionDenied) {
		t.Fatalf("err = %v, want PERMISSION_DENIED", err)
	}
	if ids, _ := store.Subscriptions().SubscribersOfPublisher(ctx, "p1"); len(ids) != 0 {
		t.Errorf("edge from a non-reader was written: %v", ids)
	}
}

// TestService_Subscribe_TargetDemotedBeforeWrite は確認後に対象が記者でなくなった場合を検証する。
func TestService_Subscribe_TargetDemotedBeforeWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	users := &demotingUserRepo{UserRepository: store.Users(), store: store, userID: "j1", role: model.RoleEditor}
	svc := NewService(store.Subscriptions(), users, store.Publishers(), nil)

	err := svc.Subscribe(ctx, "r1", "j1", model.SubscriptionKindJournalist)
	if !model.HasCode(err, model.ErrCodeJournalistNotFound) {
		t.Fatalf("err = %v, want JOURNALIST_NOT_FOUND", err)
	}
	if ids, _ := store.Subscriptions().SubscribersOfJournalist(ctx, "j1"); len(ids) != 0 {
		t.Errorf("edge to a non-journalist was written: %v", ids)
	}
}

// TestService_Unsubscribe は購読解除が冪等であることを検証する。
func TestService_Unsubscribe(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store)
	ctx := context.Background()

	_ = svc.Subscribe(ctx, "r1", "p1", model.SubscriptionKindPublisher)

	if err := svc.Unsubscribe(ctx, "r1", "p1", model.SubscriptionKindPublisher); err != nil {
		t.Fatalf("Unsubscribe returned error: %v", err)
	}
	if err := svc.Unsubscribe(ctx, "r1", "p1", model.SubscriptionKindPublisher); err != nil {
		t.Fatalf("second Unsubscribe returned error: %v", err)
	}
	ids, _ := store.Subscriptions().SubscribersOfPublisher(ctx, "p1")
	if len(ids) != 0 {
		t.Errorf("subscribers = %v, want empty", ids)
	}

	if err := svc.Unsubscribe(ctx, "j1", "p1", model.SubscriptionKindPublisher); !model.HasCode(err, model.ErrCodePermissionDenied) {
		t.Errorf("Unsubscribe by journalist: err = %v, want PERMISSION_DENIED", err)
	}
}
