package model

import "time"

// Session はログイン成立ごとに発行されるサーバー側のセッションレコードを表す。
// Tokenは署名付きトークン文字列そのもので、1トークンにつき最大1セッション。
// IsValid=falseへの遷移は一方向で、再有効化はできない。
// 1ユーザーが複数の有効セッションを同時に持つことは許容される。
type Session struct {
	ID         string    `bson:"_id,omitempty" json:"id"`
	UserID     string    `bson:"userId" json:"userId"`
	Token      string    `bson:"token" json:"-"`
	IsValid    bool      `bson:"isValid" json:"isValid"`
	DeviceInfo string    `bson:"deviceInfo,omitempty" json:"deviceInfo,omitempty"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	LastActive time.Time `bson:"lastActive" json:"lastActive"`
}
