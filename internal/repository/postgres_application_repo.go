package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/jobgate/internal/model"
)

// PostgresApplicationRepo はPostgreSQLを使用した応募リポジトリ。
type PostgresApplicationRepo struct {
	db *sql.DB
}

// NewPostgresApplicationRepo はPostgresApplicationRepoを生成する。
func NewPostgresApplicationRepo(db *sql.DB) *PostgresApplicationRepo {
	return &PostgresApplicationRepo{db: db}
}

// FindByIDWithJob は応募を求人の企業情報付きで取得する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindByIDWithJob(ctx context.Context, id int64) (*ApplicationWithJob, error) {
	a := &ApplicationWithJob{}
	var coverLetter, documentRef sql.NullString
	var statusChangedAt sql.NullTime
	var status string

	err := r.db.QueryRowContext(ctx,
		`SELECT a.id, a.job_id, a.applicant_id, a.cover_letter, a.document_ref,
		        a.status, a.status_changed_at, a.created_at,
		        p.company_id, p.title
		 FROM applications a
		 JOIN postings p ON p.id = a.job_id
		 WHERE a.id = $1`,
		id,
	).Scan(
		&a.ID, &a.JobID, &a.ApplicantID, &coverLetter, &documentRef,
		&status, &statusChangedAt, &a.CreatedAt,
		&a.CompanyID, &a.JobTitle,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}

	a.CoverLetter = stringPtr(coverLetter)
	a.DocumentRef = stringPtr(documentRef)
	a.Status = model.ApplicationStatus(status)
	a.StatusChangedAt = timePtr(statusChangedAt)
	return a, nil
}

// Create は応募を作成する。(job_id, applicant_id) の一意制約違反はErrDuplicateを返す。
func (r *PostgresApplicationRepo) Create(ctx context.Context, a *model.Application) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO applications (job_id, applicant_id, cover_letter, document_ref, status, status_changed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		a.JobID, a.ApplicantID, nullStringPtr(a.CoverLetter), nullStringPtr(a.DocumentRef),
		string(a.Status), nullTime(a.StatusChangedAt), a.CreatedAt,
	).Scan(&a.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("応募の作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateStatus は応募状態と状態変更日時を1つのUPDATEで更新する。
func (r *PostgresApplicationRepo) UpdateStatus(ctx context.Context, id int64, status model.ApplicationStatus, changedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE applications SET status = $2, status_changed_at = $3 WHERE id = $1`,
		id, string(status), changedAt,
	)
	if err != nil {
		return fmt.Errorf("応募状態の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ApplicationRepository = (*PostgresApplicationRepo)(nil)
