// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/hitoshi/jobgate/internal/model"
)

// SessionCookieName はセッションIDを保持するCookie名。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// actorContextKey はリクエストコンテキストにActorを格納するためのキー。
var actorContextKey = contextKey("actor")

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// UserFinder はユーザーの検索に必要なインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// CompanyLister は所有企業の一覧取得に必要なインターフェース。
type CompanyLister interface {
	ListIDsByOwner(ctx context.Context, ownerID string) ([]int64, error)
}

// NewActorMiddleware はHTTP Only CookieのセッションからActorを組み立て、
// リクエストコンテキストに注入するミドルウェアを返す。
// セッションが無い・無効な場合は匿名のActorで処理を続け、
// 認証の要否は各操作の認可判定に任せる。
func NewActorMiddleware(sessions SessionFinder, users UserFinder, companies CompanyLister) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := model.Actor{RemoteAddr: remoteHost(r)}

			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				resolveActor(r.Context(), &actor, cookie.Value, sessions, users, companies)
			}

			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
		})
	}
}

// resolveActor はセッションIDからユーザーと所有企業を引き、actorに設定する。
// 途中で失敗した場合はactorを匿名のままにする。
func resolveActor(ctx context.Context, actor *model.Actor, sessionID string, sessions SessionFinder, users UserFinder, companies CompanyLister) {
	session, err := sessions.FindByID(ctx, sessionID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to find session", slog.String("error", err.Error()))
		return
	}
	if session == nil {
		return
	}

	user, err := users.FindByID(ctx, session.UserID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to find user", slog.String("error", err.Error()))
		return
	}
	if user == nil {
		return
	}

	var companyIDs []int64
	if user.Role == model.RoleEmployer {
		companyIDs, err = companies.ListIDsByOwner(ctx, user.ID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to list companies", slog.String("error", err.Error()))
			return
		}
	}

	actor.UserID = user.ID
	actor.Email = user.Email
	actor.Role = user.Role
	actor.CompanyIDs = companyIDs
}

// ActorFromContext はリクエストコンテキストからActorを取得する。
// 未設定の場合は匿名のActorを返す。
func ActorFromContext(ctx context.Context) model.Actor {
	actor, _ := ctx.Value(actorContextKey).(model.Actor)
	return actor
}

// ContextWithActor はコンテキストにActorを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
