package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, moderation, application, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthRequired         = "AUTH_REQUIRED"
	ErrCodeRoleMismatch         = "ROLE_MISMATCH"
	ErrCodeNotOwner             = "NOT_OWNER"
	ErrCodeNoCompany            = "NO_COMPANY"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeInvalidPosting       = "INVALID_POSTING"
	ErrCodePostingNotFound      = "POSTING_NOT_FOUND"
	ErrCodeApplicationNotFound  = "APPLICATION_NOT_FOUND"
	ErrCodeDuplicateApplication = "DUPLICATE_APPLICATION"
	ErrCodeInvalidStatus        = "INVALID_STATUS"
	ErrCodeInvalidReason        = "INVALID_REASON"
	ErrCodeMissingID            = "MISSING_ID"
)

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidPostingError は求人内容の検証エラーを生成する。
func NewInvalidPostingError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPosting,
		Message:  fmt.Sprintf("求人の内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度送信してください。",
	}
}

// NewPostingNotFoundError は求人未検出エラーを生成する。
func NewPostingNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodePostingNotFound,
		Message:  fmt.Sprintf("指定された求人が見つかりません: %d", id),
		Category: "moderation",
		Action:   "求人IDを確認してください。",
	}
}

// NewApplicationNotFoundError は応募未検出エラーを生成する。
func NewApplicationNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeApplicationNotFound,
		Message:  fmt.Sprintf("指定された応募が見つかりません: %d", id),
		Category: "application",
		Action:   "応募IDを確認してください。",
	}
}

// NewDuplicateApplicationError は同一求人への重複応募エラーを生成する。
func NewDuplicateApplicationError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateApplication,
		Message:  "この求人には既に応募しています。",
		Category: "application",
		Action:   "応募履歴から該当の応募を確認してください。",
	}
}

// NewInvalidStatusError は定義外の応募状態が指定された場合のエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効な応募状態です: %q", status),
		Category: "validation",
		Action:   "submitted、viewed、interview、offer、rejected のいずれかを指定してください。",
	}
}

// NewInvalidReasonError は定義外の却下理由が指定された場合のエラーを生成する。
func NewInvalidReasonError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidReason,
		Message:  fmt.Sprintf("無効な理由です: %q", reason),
		Category: "validation",
		Action:   "DUPLICATE、PROFANITY、CONTACT_LEAK のいずれか、または空を指定してください。",
	}
}

// NewMissingIDError はIDが指定されていない場合のエラーを生成する。
func NewMissingIDError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingID,
		Message:  "IDが指定されていません。",
		Category: "validation",
		Action:   "対象のIDを指定してください。",
	}
}

// NewAuthRequiredError は未認証エラーを生成する。
func NewAuthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthRequired,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewRoleMismatchError は操作に必要なロールを持たない場合のエラーを生成する。
func NewRoleMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeRoleMismatch,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "適切なアカウントでログインしてください。",
	}
}

// NewNotOwnerError は対象の企業を所有していない場合のエラーを生成する。
func NewNotOwnerError() *APIError {
	return &APIError{
		Code:     ErrCodeNotOwner,
		Message:  "対象の企業に対する権限がありません。",
		Category: "auth",
		Action:   "自社の求人・応募のみ操作できます。",
	}
}

// NewNoCompanyError は企業を1社も所有していない場合のエラーを生成する。
func NewNoCompanyError() *APIError {
	return &APIError{
		Code:     ErrCodeNoCompany,
		Message:  "企業が登録されていません。",
		Category: "auth",
		Action:   "企業プロフィールを作成してから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Prea multe cereri. Încearcă mai târziu.",
		Category: "system",
		Action:   "しばらく時間をおいてから再度お試しください。",
	}
}
