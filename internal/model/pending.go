package model

import "time"

// PendingUser はメール検証待ちの一時的な登録レコードを表す。
// 同一メールアドレスに対して同時に存在できるのは最大1件で、
// 再サインアップ時は置き換えられる。検証成功でUserへ昇格して削除されるか、
// ストアのTTL（約15分）で自動削除される。
type PendingUser struct {
	ID       string `bson:"_id,omitempty" json:"id"`
	Name     string `bson:"name" json:"name"`
	Email    string `bson:"email" json:"email"`
	Password string `bson:"password" json:"-"`
	Role     Role   `bson:"role" json:"role"`

	// User昇格時にそのまま引き継ぐロール固有情報。
	DoctorInfo  *DoctorInfo  `bson:"doctorInfo,omitempty" json:"-"`
	PatientInfo *PatientInfo `bson:"patientInfo,omitempty" json:"-"`

	OTP       string    `bson:"emailVerificationOTP" json:"-"`
	OTPExpiry time.Time `bson:"otpExpiry" json:"-"`

	// CreatedAt はTTLインデックスの起点。アプリケーションからは削除しない。
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
