package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/newsdesk/internal/model"
)

// PostgresPublisherRepo はPostgreSQLを使用した発行元リポジトリ。
// 所属する編集者と記者はpublisher_membersテーブルで管理する。
type PostgresPublisherRepo struct {
	db *sql.DB
}

// NewPostgresPublisherRepo はPostgresPublisherRepoを生成する。
func NewPostgresPublisherRepo(db *sql.DB) *PostgresPublisherRepo {
	return &PostgresPublisherRepo{db: db}
}

const publisherColumns = `id, name, description, website, created_at, updated_at`

// FindByID は指定IDの発行元を所属メンバー付きで取得する。見つからない場合はnilを返す。
func (r *PostgresPublisherRepo) FindByID(ctx context.Context, id string) (*model.Publisher, error) {
	if !validID(id) {
		return nil, nil
	}
	return r.findOne(ctx, `SELECT `+publisherColumns+` FROM publishers WHERE id = $1`, id)
}

// FindByName は名前（大文字小文字を区別しない）で発行元を検索する。見つからない場合はnilを返す。
func (r *PostgresPublisherRepo) FindByName(ctx context.Context, name string) (*model.Publisher, error) {
	return r.findOne(ctx, `SELECT `+publisherColumns+` FROM publishers WHERE lower(name) = lower($1)`, name)
}

func (r *PostgresPublisherRepo) findOne(ctx context.Context, query, arg string) (*model.Publisher, error) {
	p := &model.Publisher{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID, &p.Name, &p.Description, &p.Website, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("発行元の取得に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, role FROM publisher_members WHERE publisher_id = $1 ORDER BY created_at ASC`,
		p.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("発行元メンバーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, role string
		if err := rows.Scan(&userID, &role); err != nil {
			return nil, fmt.Errorf("発行元メンバー行の読み取りに失敗しました: %w", err)
		}
		switch model.Role(role) {
		case model.RoleEditor:
			p.EditorIDs = append(p.EditorIDs, userID)
		case model.RoleJournalist:
			p.JournalistIDs = append(p.JournalistIDs, userID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("発行元メンバーの走査に失敗しました: %w", err)
	}
	return p, nil
}

// Create は発行元を作成する。
func (r *PostgresPublisherRepo) Create(ctx context.Context, p *model.Publisher) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO publishers (id, name, description, website, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.Description, p.Website, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("発行元の作成に失敗しました: %w", err)
	}
	return nil
}

// AddMember は発行元に編集者または記者を追加する。冪等。
func (r *PostgresPublisherRepo) AddMember(ctx context.Context, publisherID, userID string, role model.Role) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO publisher_members (publisher_id, user_id, role, created_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (publisher_id, user_id, role) DO NOTHING`,
		publisherID, userID, string(role),
	)
	if err != nil {
		return fmt.Errorf("発行元メンバーの追加に失敗しました: %w", err)
	}
	return nil
}

// RemoveMemberships は指定ユーザーの指定役割での所属を全発行元から削除する。
func (r *PostgresPublisherRepo) RemoveMemberships(ctx context.Context, userID string, role model.Role) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM publisher_members WHERE user_id = $1 AND role = $2`,
		userID, string(role),
	)
	if err != nil {
		return fmt.Errorf("発行元メンバーの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PublisherRepository = (*PostgresPublisherRepo)(nil)
