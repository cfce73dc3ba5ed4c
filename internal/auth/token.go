// Package auth はBearerトークンの検証と、呼び出し元のユーザー解決を提供する。
// トークンの発行は別サービスの責務で、このパッケージは検証のみを行う。
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/adboard/internal/model"
)

// ErrInvalidToken はトークンの署名・形式・有効期限が不正な場合のエラー。
var ErrInvalidToken = errors.New("invalid token")

// Claims はアクセストークンのクレーム。
// subjectにメールアドレス、roleにUSERまたはADMINを持つ。
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier はHMAC署名のJWTを検証し、呼び出し元の識別情報に変換する。
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier はTokenVerifierを生成する。
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})),
	}
}

// Verify はトークン文字列を検証し、Callerを返す。
// subjectが空のトークンは不正として扱う。ADMIN以外のロールはUSERとみなす。
func (v *TokenVerifier) Verify(tokenString string) (model.Caller, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return model.Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return model.Caller{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return model.Caller{}, fmt.Errorf("%w: subject is empty", ErrInvalidToken)
	}

	role := model.RoleUser
	if model.Role(claims.Role) == model.RoleAdmin {
		role = model.RoleAdmin
	}
	return model.Caller{Email: claims.Subject, Role: role}, nil
}

// Sign はCallerを表すHS256トークンを生成する。ttlが0以下の場合は有効期限を付けない。
// 開発環境での動作確認とテストに使用する。
func (v *TokenVerifier) Sign(caller model.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(caller.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  caller.Email,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
