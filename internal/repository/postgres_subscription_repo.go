package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/newsdesk/internal/model"
)

// PostgresSubscriptionRepo はPostgreSQLを使用した購読リポジトリ。
// 発行元への購読と記者への購読は別テーブルで保持する。
type PostgresSubscriptionRepo struct {
	db *sql.DB
}

// NewPostgresSubscriptionRepo はPostgresSubscriptionRepoを生成する。
func NewPostgresSubscriptionRepo(db *sql.DB) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{db: db}
}

// edgeTable は購読種別に対応するテーブル名と対象カラム名を返す。
func edgeTable(kind model.SubscriptionKind) (table, column string, err error) {
	switch kind {
	case model.SubscriptionKindPublisher:
		return "publisher_subscriptions", "publisher_id", nil
	case model.SubscriptionKindJournalist:
		return "journalist_subscriptions", "journalist_id", nil
	default:
		return "", "", fmt.Errorf("未知の購読種別です: %q", kind)
	}
}

// SubscribersOfPublisher は発行元を購読している読者IDを返す。
func (r *PostgresSubscriptionRepo) SubscribersOfPublisher(ctx context.Context, publisherID string) ([]string, error) {
	return r.queryReaderIDs(ctx,
		`SELECT reader_id FROM publisher_subscriptions WHERE publisher_id = $1 ORDER BY reader_id`,
		publisherID,
	)
}

// SubscribersOfJournalist は記者を直接購読している読者IDを返す。
func (r *PostgresSubscriptionRepo) SubscribersOfJournalist(ctx context.Context, journalistID string) ([]string, error) {
	return r.queryReaderIDs(ctx,
		`SELECT reader_id FROM journalist_subscriptions WHERE journalist_id = $1 ORDER BY reader_id`,
		journalistID,
	)
}

func (r *PostgresSubscriptionRepo) queryReaderIDs(ctx context.Context, query, targetID string) ([]string, error) {
	if !validID(targetID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, query, targetID)
	if err != nil {
		return nil, fmt.Errorf("購読者の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("購読者行の読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読者の走査に失敗しました: %w", err)
	}
	return ids, nil
}

// targetSource は購読対象の存在確認に使う行ロック付きSELECTを返す。
func targetSource(kind model.SubscriptionKind) string {
	if kind == model.SubscriptionKindJournalist {
		return `SELECT id FROM users WHERE id = $2 AND role = 'journalist' FOR SHARE`
	}
	return `SELECT id FROM publishers WHERE id = $2 FOR SHARE`
}

// Add は購読辺を追加する。既に存在する場合は何もしない。
// 起点と対象の役割確認は挿入と同じ文で行い、確認した行を共有ロックする。
// 並行する役割変更はこの文の完了を待ってから購読辺を掃除するため、
// 読者以外を起点とする辺は残らない。
func (r *PostgresSubscriptionRepo) Add(ctx context.Context, readerID, targetID string, kind model.SubscriptionKind) error {
	table, column, err := edgeTable(kind)
	if err != nil {
		return err
	}
	if !validID(readerID) {
		return ErrSubscriberNotReader
	}
	if !validID(targetID) {
		return ErrTargetNotFound
	}
	var readerOK, targetOK bool
	err = r.db.QueryRowContext(ctx,
		`WITH reader AS (
		     SELECT id FROM users WHERE id = $1 AND role = 'reader' FOR SHARE
		 ), target AS (
		     `+targetSource(kind)+`
		 ), ins AS (
		     INSERT INTO `+table+` (reader_id, `+column+`, created_at)
		     SELECT reader.id, target.id, NOW() FROM reader, target
		     ON CONFLICT (reader_id, `+column+`) DO NOTHING
		 )
		 SELECT EXISTS (SELECT 1 FROM reader), EXISTS (SELECT 1 FROM target)`,
		readerID, targetID,
	).Scan(&readerOK, &targetOK)
	if err != nil {
		return fmt.Errorf("購読の作成に失敗しました: %w", err)
	}
	if !readerOK {
		return ErrSubscriberNotReader
	}
	if !targetOK {
		return ErrTargetNotFound
	}
	return nil
}

// Remove は購読辺を削除する。存在しない場合は何もしない。
func (r *PostgresSubscriptionRepo) Remove(ctx context.Context, readerID, targetID string, kind model.SubscriptionKind) error {
	table, column, err := edgeTable(kind)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE reader_id = $1 AND `+column+` = $2`,
		readerID, targetID,
	)
	if err != nil {
		return fmt.Errorf("購読の削除に失敗しました: %w", err)
	}
	return nil
}

// ListByReader は読者の購読辺を作成日時順で返す。
func (r *PostgresSubscriptionRepo) ListByReader(ctx context.Context, readerID string) ([]model.SubscriptionEdge, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT reader_id, publisher_id, 'publisher', created_at
		 FROM publisher_subscriptions WHERE reader_id = $1
		 UNION ALL
		 SELECT reader_id, journalist_id, 'journalist', created_at
		 FROM journalist_subscriptions WHERE reader_id = $1
		 ORDER BY 4 ASC`,
		readerID,
	)
	if err != nil {
		return nil, fmt.Errorf("購読一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var edges []model.SubscriptionEdge
	for rows.Next() {
		var edge model.SubscriptionEdge
		var kind string
		if err := rows.Scan(&edge.ReaderID, &edge.TargetID, &kind, &edge.CreatedAt); err != nil {
			return nil, fmt.Errorf("購読行の読み取りに失敗しました: %w", err)
		}
		edge.Kind = model.SubscriptionKind(kind)
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読一覧の走査に失敗しました: %w", err)
	}
	return edges, nil
}

// DeleteByReader は読者を起点とする全ての購読辺を削除する。
func (r *PostgresSubscriptionRepo) DeleteByReader(ctx context.Context, readerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM publisher_subscriptions WHERE reader_id = $1`, readerID); err != nil {
		return fmt.Errorf("発行元購読の削除に失敗しました: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM journalist_subscriptions WHERE reader_id = $1`, readerID); err != nil {
		return fmt.Errorf("記者購読の削除に失敗しました: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// DeleteByTarget は指定対象への全ての購読辺を削除する。
func (r *PostgresSubscriptionRepo) DeleteByTarget(ctx context.Context, targetID string, kind model.SubscriptionKind) error {
	table, column, err := edgeTable(kind)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE `+column+` = $1`,
		targetID,
	)
	if err != nil {
		return fmt.Errorf("対象への購読の削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)
