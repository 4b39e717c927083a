// Package model はドメインモデルを定義する。
package model

import "time"

// User はSteamでログインしたサービス利用ユーザーを表す。
// SteamIDは外部IdPのサブジェクトIDで、作成後は変更されない。
type User struct {
	ID        string
	SteamID   string
	Username  string
	AvatarURL string
	Balance   int64 // 残高（最小通貨単位）
	TradeLink string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExternalProfile は外部IdPで検証済みのプロフィールを表す。
// Photosは小さい順のアバター画像URL。
type ExternalProfile struct {
	SubjectID   string
	DisplayName string
	Photos      []string
}

// AvatarURL はプロフィール画像のうち最も大きいものを返す。
// 3枚目（フルサイズ）を優先し、なければ最後の1枚、1枚もなければ空文字を返す。
func (p ExternalProfile) AvatarURL() string {
	if len(p.Photos) > 2 {
		return p.Photos[2]
	}
	if len(p.Photos) == 0 {
		return ""
	}
	return p.Photos[len(p.Photos)-1]
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
