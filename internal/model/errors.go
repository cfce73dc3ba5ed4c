// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, listing, asset, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因となったエラー（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeCallerNotFound  = "CALLER_NOT_FOUND"
	ErrCodeListingNotFound = "LISTING_NOT_FOUND"
	ErrCodeNotAuthor       = "NOT_AUTHOR"
	ErrCodeAuthorNotFound  = "AUTHOR_NOT_FOUND"
	ErrCodeAssetIOFailure  = "ASSET_IO_FAILURE"
	ErrCodeAssetNotFound   = "ASSET_NOT_FOUND"
	ErrCodeInvalidListing  = "INVALID_LISTING"
)

// NewCallerNotFoundError は呼び出し元を既知のユーザーに解決できない場合のエラーを生成する。
// 権限不足（NotAuthor）とは区別される認証エラー。
func NewCallerNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeCallerNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewListingNotFoundError は広告が存在しない場合のエラーを生成する。
func NewListingNotFoundError(listingID int64) *APIError {
	return &APIError{
		Code:     ErrCodeListingNotFound,
		Message:  fmt.Sprintf("指定された広告が見つかりません: %d", listingID),
		Category: "listing",
		Action:   "広告IDを確認してください。",
	}
}

// NewNotAuthorError は呼び出し元が広告の作成者でも管理者でもない場合のエラーを生成する。
func NewNotAuthorError(listingID int64) *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthor,
		Message:  fmt.Sprintf("この広告を変更する権限がありません: %d", listingID),
		Category: "auth",
		Action:   "自分が作成した広告のみ変更できます。",
	}
}

// NewAuthorNotFoundError は広告の作成者参照が空の場合のエラーを生成する。
// 作成者は常に設定されている前提のため、発生した場合はデータ不整合を示す。
func NewAuthorNotFoundError(listingID int64) *APIError {
	return &APIError{
		Code:     ErrCodeAuthorNotFound,
		Message:  fmt.Sprintf("広告の作成者が見つかりません: %d", listingID),
		Category: "system",
		Action:   "管理者に問い合わせてください。",
	}
}

// NewAssetIOFailureError は画像ファイルの読み書きに失敗した場合のエラーを生成する。
func NewAssetIOFailureError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeAssetIOFailure,
		Message:  "画像の保存または読み込みに失敗しました。",
		Category: "asset",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewAssetNotFoundError は指定された名前の画像が存在しない場合のエラーを生成する。
func NewAssetNotFoundError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeAssetNotFound,
		Message:  fmt.Sprintf("指定された画像が見つかりません: %s", name),
		Category: "asset",
		Action:   "画像URLを確認してください。",
	}
}

// NewInvalidListingError は広告の入力値が不正な場合のエラーを生成する。
func NewInvalidListingError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidListing,
		Message:  fmt.Sprintf("広告の内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// HasCode はerrが指定コードのAPIErrorであるかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
