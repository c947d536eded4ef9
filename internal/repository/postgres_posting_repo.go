package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/jobgate/internal/model"
)

const postingColumns = `id, company_id, created_by, title, description, category, city,
	salary_min, salary_max, expires_at,
	moderation_state, flagged_reason, flagged_at, approved_at, moderated_by,
	created_at, updated_at`

// PostgresPostingRepo はPostgreSQLを使用した求人リポジトリ。
type PostgresPostingRepo struct {
	db *sql.DB
}

// NewPostgresPostingRepo はPostgresPostingRepoを生成する。
func NewPostgresPostingRepo(db *sql.DB) *PostgresPostingRepo {
	return &PostgresPostingRepo{db: db}
}

// scanPosting は1行を求人に変換する。
func scanPosting(row rowScanner) (*model.Posting, error) {
	p := &model.Posting{}
	var category, city, moderatedBy sql.NullString
	var salaryMin, salaryMax sql.NullInt64
	var expiresAt, flaggedAt, approvedAt sql.NullTime
	var state, reason string

	err := row.Scan(
		&p.ID, &p.CompanyID, &p.CreatedBy, &p.Title, &p.Description, &category, &city,
		&salaryMin, &salaryMax, &expiresAt,
		&state, &reason, &flaggedAt, &approvedAt, &moderatedBy,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Category = nullStringValue(category)
	p.City = nullStringValue(city)
	p.SalaryMin = intPtr(salaryMin)
	p.SalaryMax = intPtr(salaryMax)
	p.ExpiresAt = timePtr(expiresAt)
	p.Moderation = model.Moderation{
		State:         model.ModerationState(state),
		FlaggedReason: model.FlaggedReason(reason),
		FlaggedAt:     timePtr(flaggedAt),
		ApprovedAt:    timePtr(approvedAt),
		ModeratedBy:   nullStringValue(moderatedBy),
	}
	return p, nil
}

// FindByID は指定IDの求人を取得する。見つからない場合はnilを返す。
func (r *PostgresPostingRepo) FindByID(ctx context.Context, id int64) (*model.Posting, error) {
	p, err := scanPosting(r.db.QueryRowContext(ctx,
		`SELECT `+postingColumns+` FROM postings WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	return p, nil
}

// Create は審査状態を含む求人を1つのINSERTで作成する。
func (r *PostgresPostingRepo) Create(ctx context.Context, p *model.Posting) error {
	m := p.Moderation
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO postings (company_id, created_by, title, description, category, city,
		                       salary_min, salary_max, expires_at,
		                       moderation_state, flagged_reason, flagged_at, approved_at, moderated_by,
		                       created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING id`,
		p.CompanyID, p.CreatedBy, p.Title, p.Description, nullString(p.Category), nullString(p.City),
		nullInt(p.SalaryMin), nullInt(p.SalaryMax), nullTime(p.ExpiresAt),
		string(m.State), string(m.FlaggedReason), nullTime(m.FlaggedAt), nullTime(m.ApprovedAt), nullString(m.ModeratedBy),
		p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("求人の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は求人の内容と審査状態を1つのUPDATEで更新する。
func (r *PostgresPostingRepo) Update(ctx context.Context, p *model.Posting) error {
	m := p.Moderation
	_, err := r.db.ExecContext(ctx,
		`UPDATE postings SET
		    title = $2, description = $3, category = $4, city = $5,
		    salary_min = $6, salary_max = $7, expires_at = $8,
		    moderation_state = $9, flagged_reason = $10, flagged_at = $11,
		    approved_at = $12, moderated_by = $13, updated_at = $14
		 WHERE id = $1`,
		p.ID, p.Title, p.Description, nullString(p.Category), nullString(p.City),
		nullInt(p.SalaryMin), nullInt(p.SalaryMax), nullTime(p.ExpiresAt),
		string(m.State), string(m.FlaggedReason), nullTime(m.FlaggedAt),
		nullTime(m.ApprovedAt), nullString(m.ModeratedBy), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("求人の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateModeration は審査状態のみを更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresPostingRepo) UpdateModeration(ctx context.Context, id int64, m model.Moderation) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE postings SET
		    moderation_state = $2, flagged_reason = $3, flagged_at = $4,
		    approved_at = $5, moderated_by = $6, updated_at = now()
		 WHERE id = $1`,
		id, string(m.State), string(m.FlaggedReason), nullTime(m.FlaggedAt),
		nullTime(m.ApprovedAt), nullString(m.ModeratedBy),
	)
	if err != nil {
		return false, fmt.Errorf("審査状態の更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListRecentByCompany は企業のsince以降に作成された求人を作成日時の降順で返す。
func (r *PostgresPostingRepo) ListRecentByCompany(ctx context.Context, companyID int64, since time.Time) ([]*model.Posting, error) {
	return r.list(ctx,
		`SELECT `+postingColumns+` FROM postings
		 WHERE company_id = $1 AND created_at >= $2
		 ORDER BY created_at DESC`,
		companyID, since,
	)
}

// CountApprovedByCreator は作成者の承認済み求人数を返す。
func (r *PostgresPostingRepo) CountApprovedByCreator(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM postings WHERE created_by = $1 AND moderation_state = $2`,
		userID, string(model.ModerationApproved),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("承認済み求人数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// ListPending は審査待ちの求人を古い順にlimit件まで返す。
func (r *PostgresPostingRepo) ListPending(ctx context.Context, limit int) ([]*model.Posting, error) {
	return r.list(ctx,
		`SELECT `+postingColumns+` FROM postings
		 WHERE moderation_state = $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		string(model.ModerationPending), limit,
	)
}

func (r *PostgresPostingRepo) list(ctx context.Context, query string, args ...any) ([]*model.Posting, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("求人一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var postings []*model.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, fmt.Errorf("求人のスキャンに失敗しました: %w", err)
		}
		postings = append(postings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("求人一覧の走査に失敗しました: %w", err)
	}
	return postings, nil
}

// compile-time interface check
var _ PostingRepository = (*PostgresPostingRepo)(nil)
