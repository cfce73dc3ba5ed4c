// Package announce は広告のライフサイクル（一覧・取得・作成・更新・画像差し替え・削除）を提供する。
//
// 変更系の操作は必ずGuardによる認可を先に通す。認可の評価順は固定で、
// 呼び出し元の解決、広告の存在確認、ロールと所有者の判定の順に行う。
package announce

import (
	"context"
	"fmt"

	"github.com/hitoshi/adboard/internal/metrics"
	"github.com/hitoshi/adboard/internal/model"
	"github.com/hitoshi/adboard/internal/repository"
)

// 認可拒否の理由ラベル
const (
	denyCallerNotFound  = "caller_not_found"
	denyListingNotFound = "listing_not_found"
	denyNotAuthor       = "not_author"
)

// CallerResolver は呼び出し元の識別情報をユーザーに解決する。
// 解決できない場合はCALLER_NOT_FOUNDのAPIErrorを返す。
type CallerResolver interface {
	Resolve(ctx context.Context, caller model.Caller) (*model.User, error)
}

// Subject は認可ルールの評価対象。
// ルールが評価される時点で、呼び出し元ユーザーと広告はどちらも解決済み。
type Subject struct {
	Caller  model.Caller
	User    *model.User
	Listing *model.Listing
}

// Rule は認可ルールの1節を表す。
type Rule interface {
	// Name はメトリクスやログに使うルール名を返す。
	Name() string
	// Allows はSubjectに対して操作を許可するかを返す。
	Allows(s Subject) bool
}

// RoleRule は呼び出し元ユーザーが指定ロールを持つ場合に許可する。
// ロールはusersテーブルに保存された値で判定し、トークンのクレームは参照しない。
type RoleRule struct {
	Role model.Role
}

// Name はルール名を返す。
func (r RoleRule) Name() string {
	return "role:" + string(r.Role)
}

// Allows は解決済みユーザーの保存済みロールが一致する場合にtrueを返す。
func (r RoleRule) Allows(s Subject) bool {
	return s.User != nil && s.User.Role == r.Role
}

// OwnershipRule は呼び出し元が広告の作成者である場合に許可する。
type OwnershipRule struct{}

// Name はルール名を返す。
func (OwnershipRule) Name() string {
	return "ownership"
}

// Allows は解決済みユーザーIDと広告の作成者IDが一致する場合にtrueを返す。
func (OwnershipRule) Allows(s Subject) bool {
	if s.User == nil || s.Listing == nil || s.Listing.AuthorID == 0 {
		return false
	}
	return s.User.ID == s.Listing.AuthorID
}

// DefaultRules は管理者ロール、所有者の順で評価するルール列を返す。
func DefaultRules() []Rule {
	return []Rule{RoleRule{Role: model.RoleAdmin}, OwnershipRule{}}
}

// Decision は許可された認可の結果。
// 以降の処理で再取得しないよう、解決済みのユーザーと広告を保持する。
type Decision struct {
	User    *model.User
	Listing *model.Listing
	Rule    string
}

// Guard は広告に対する変更操作の認可を行う。
type Guard struct {
	resolver    CallerResolver
	listingRepo repository.ListingRepository
	rules       []Rule
	metrics     metrics.MetricsCollector
}

// NewGuard はGuardを生成する。rulesが空の場合はDefaultRulesを使用する。
// metricsCollectorはnilでもよい。
func NewGuard(
	resolver CallerResolver,
	listingRepo repository.ListingRepository,
	metricsCollector metrics.MetricsCollector,
	rules ...Rule,
) *Guard {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Guard{
		resolver:    resolver,
		listingRepo: listingRepo,
		rules:       rules,
		metrics:     metricsCollector,
	}
}

// Authorize は呼び出し元が指定広告を変更できるかを判定する。
// 評価順は固定で、呼び出し元を解決できなければCALLER_NOT_FOUND、
// 広告が存在しなければLISTING_NOT_FOUND、どのルールにも該当しなければNOT_AUTHORを返す。
func (g *Guard) Authorize(ctx context.Context, caller model.Caller, listingID int64) (*Decision, error) {
	user, err := g.resolver.Resolve(ctx, caller)
	if err != nil {
		if model.HasCode(err, model.ErrCodeCallerNotFound) {
			g.recordDenied(denyCallerNotFound)
		}
		return nil, err
	}

	listing, err := g.listingRepo.FindByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to find listing: %w", err)
	}
	if listing == nil {
		g.recordDenied(denyListingNotFound)
		return nil, model.NewListingNotFoundError(listingID)
	}

	subject := Subject{Caller: caller, User: user, Listing: listing}
	for _, rule := range g.rules {
		if rule.Allows(subject) {
			return &Decision{User: user, Listing: listing, Rule: rule.Name()}, nil
		}
	}

	g.recordDenied(denyNotAuthor)
	return nil, model.NewNotAuthorError(listingID)
}

func (g *Guard) recordDenied(reason string) {
	if g.metrics != nil {
		g.metrics.RecordAuthorizationDenied(reason)
	}
}
