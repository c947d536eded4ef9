package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/jobgate/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

// Create はイベントを記録する。プロパティはJSONBとして保存する。
func (r *PostgresEventRepo) Create(ctx context.Context, e *model.Event) error {
	props := e.Properties
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("イベントプロパティのエンコードに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO events (id, name, user_id, request_id, properties, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Name, nullString(e.UserID), nullString(e.RequestID), raw, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("イベントの記録に失敗しました: %w", err)
	}
	return nil
}

// DeleteOlderThan はbeforeより前のイベントを削除する。
func (r *PostgresEventRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM events WHERE created_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("古いイベントの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
