// Package asset は広告画像の保存・差し替え・取得を提供する。
//
// 画像は作成時に決定的な名前で保存され、広告レコードはその名前を参照する。
// 実体の保存先はBackendで抽象化され、ローカルディレクトリとS3互換ストレージに対応する。
package asset

import (
	"fmt"
	"regexp"
	"unicode/utf16"
)

// EmailDigest はメールアドレスから32bitのハッシュ値を算出する。
// UTF-16コード単位に対する多項式ハッシュ（基数31、符号付き32bitで桁あふれ）で、
// 既存の保存済みアセット名と同じ値を再現する。
func EmailDigest(email string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(email)) {
		h = 31*h + int32(u)
	}
	return h
}

// Name は作成者内の連番、作成者ID、メールアドレスのハッシュからアセット名を生成する。
// 形式: Ads_<seq>_auth_<authorID>_lg_<digest>
func Name(seq int, authorID int64, emailDigest int32) string {
	return fmt.Sprintf("Ads_%d_auth_%d_lg_%d", seq, authorID, emailDigest)
}

var validName = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// ValidName は名前が保存先のパスとして安全に使えるかを返す。
// URLから受け取った名前によるディレクトリトラバーサルを防ぐ。
func ValidName(name string) bool {
	return len(name) <= 255 && validName.MatchString(name)
}
