// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はアカウントの役割を表す閉じた型。
type Role string

const (
	// RolePatient は患者アカウント。
	RolePatient Role = "patient"
	// RoleDoctor は医師アカウント。
	RoleDoctor Role = "doctor"
	// RoleAdmin は管理者アカウント。
	RoleAdmin Role = "admin"
)

// ParseRole は文字列をRoleに変換する（大文字小文字を区別しない）。
// 未知の値の場合はfalseを返す。
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePatient:
		return RolePatient, true
	case RoleDoctor:
		return RoleDoctor, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// UserStatus はアカウントの稼働状態を表す。
type UserStatus string

const (
	// UserStatusActive は通常稼働中のアカウント。
	UserStatusActive UserStatus = "active"
	// UserStatusInactive は休止中のアカウント。
	UserStatusInactive UserStatus = "inactive"
	// UserStatusSuspended は停止されたアカウント。
	UserStatusSuspended UserStatus = "suspended"
)

// DoctorInfo は医師ロール固有の情報。
type DoctorInfo struct {
	Verified bool `bson:"isVerified" json:"isVerified"`
}

// PatientInfo は患者ロール固有の情報。
type PatientInfo struct {
	DateOfBirth    time.Time `bson:"dateOfBirth" json:"dateOfBirth"`
	Gender         string    `bson:"gender,omitempty" json:"gender,omitempty"`
	MedicalHistory []string  `bson:"medicalHistory,omitempty" json:"medicalHistory,omitempty"`
	// Serial は一度割り当てたら再割り当てしない一意の患者シリアル（PAT-YYYYMMDD-XXXX）。
	Serial string `bson:"serial,omitempty" json:"serial,omitempty"`
}

// User は検証済みの恒久アカウントレコード（Identity）を表す。
// Emailは全レコードで一意（小文字正規化済み）。Roleは作成後不変。
type User struct {
	ID            string `bson:"_id,omitempty" json:"id"`
	Name          string `bson:"name" json:"name"`
	Email         string `bson:"email" json:"email"`
	Password      string `bson:"password" json:"-"`
	Role          Role   `bson:"role" json:"role"`
	EmailVerified bool   `bson:"isEmailVerified" json:"isEmailVerified"`

	// 再検証経路用のOTP。通常の新規登録ではPendingUser側が保持する。
	OTP       string     `bson:"emailVerificationOTP,omitempty" json:"-"`
	OTPExpiry *time.Time `bson:"otpExpiry,omitempty" json:"-"`

	DoctorInfo  *DoctorInfo  `bson:"doctorInfo,omitempty" json:"doctorInfo,omitempty"`
	PatientInfo *PatientInfo `bson:"patientInfo,omitempty" json:"patientInfo,omitempty"`

	// 患者に割り当てられた医師のユーザーID。
	AssignedDoctor string `bson:"assignedDoctor,omitempty" json:"assignedDoctor,omitempty"`
	// 医師に割り当てられた患者のユーザーID一覧。
	AssignedPatients []string `bson:"assignedPatients,omitempty" json:"assignedPatients,omitempty"`

	Status     UserStatus `bson:"status" json:"status"`
	CreatedAt  time.Time  `bson:"createdAt" json:"createdAt"`
	LastActive time.Time  `bson:"lastActive" json:"lastActive"`
}

// Public はパスワードハッシュとOTP関連フィールドを除いたコピーを返す。
// APIレスポンスに含めてよいのはこのビューのみ。
func (u *User) Public() *User {
	pub := *u
	pub.Password = ""
	pub.OTP = ""
	pub.OTPExpiry = nil
	return &pub
}
