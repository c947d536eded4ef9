package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/jobgate/internal/model"
)

// PostgresCompanyRepo はPostgreSQLを使用した企業リポジトリ。
type PostgresCompanyRepo struct {
	db *sql.DB
}

// NewPostgresCompanyRepo はPostgresCompanyRepoを生成する。
func NewPostgresCompanyRepo(db *sql.DB) *PostgresCompanyRepo {
	return &PostgresCompanyRepo{db: db}
}

// FindByID は指定IDの企業を取得する。見つからない場合はnilを返す。
func (r *PostgresCompanyRepo) FindByID(ctx context.Context, id int64) (*model.Company, error) {
	c := &model.Company{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, city, is_verified, created_at FROM companies WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.OwnerID, &c.Name, &c.City, &c.IsVerified, &c.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("企業の取得に失敗しました: %w", err)
	}
	return c, nil
}

// ListIDsByOwner は指定ユーザーが所有する企業のID一覧を返す。
func (r *PostgresCompanyRepo) ListIDsByOwner(ctx context.Context, ownerID string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM companies WHERE owner_id = $1 ORDER BY id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("所有企業の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("企業IDのスキャンに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("企業一覧の走査に失敗しました: %w", err)
	}
	return ids, nil
}

// compile-time interface check
var _ CompanyRepository = (*PostgresCompanyRepo)(nil)
