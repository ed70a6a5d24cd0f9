package model

import "time"

// Classification はMRI分類結果のラベル。分類器が返す固定集合。
type Classification string

const (
	// ClassificationAD はアルツハイマー型認知症。
	ClassificationAD Classification = "AD"
	// ClassificationCN は健常。
	ClassificationCN Classification = "CN"
	// ClassificationEMCI は早期軽度認知障害。
	ClassificationEMCI Classification = "EMCI"
	// ClassificationLMCI は後期軽度認知障害。
	ClassificationLMCI Classification = "LMCI"
)

// Classifications は有効な分類ラベルの一覧（カテゴリ別表示の順序もこれに従う）。
var Classifications = []Classification{
	ClassificationAD,
	ClassificationCN,
	ClassificationEMCI,
	ClassificationLMCI,
}

// Valid は既知の分類ラベルかどうかを返す。
func (c Classification) Valid() bool {
	for _, known := range Classifications {
		if c == known {
			return true
		}
	}
	return false
}

// ReportStatus はレポートのレビュー状態。
type ReportStatus string

const (
	// ReportStatusPending は医師レビュー待ち。
	ReportStatusPending ReportStatus = "pending"
	// ReportStatusReviewed は医師レビュー済み。
	ReportStatusReviewed ReportStatus = "reviewed"
	// ReportStatusClosed は対応完了。
	ReportStatusClosed ReportStatus = "closed"
)

// Report はMRI分類結果と医師の所見を保持するレポートを表す。
type Report struct {
	ID             string             `bson:"_id,omitempty" json:"id"`
	PatientID      string             `bson:"patient" json:"patientId"`
	Image          []byte             `bson:"image,omitempty" json:"-"`
	Classification Classification     `bson:"classification" json:"classification"`
	Scores         map[string]float64 `bson:"scores,omitempty" json:"scores,omitempty"`

	// 医師による注釈フィールド。
	DoctorNotes            string     `bson:"doctorNotes,omitempty" json:"doctorNotes,omitempty"`
	RecommendedMedications []string   `bson:"recommendedMedications,omitempty" json:"recommendedMedications,omitempty"`
	RecommendedTherapies   []string   `bson:"recommendedTherapies,omitempty" json:"recommendedTherapies,omitempty"`
	FollowUpDate           *time.Time `bson:"followUpDate,omitempty" json:"followUpDate,omitempty"`

	Status     ReportStatus `bson:"status" json:"status"`
	ReviewedBy string       `bson:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`
	ReviewedAt *time.Time   `bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
	CreatedAt  time.Time    `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time    `bson:"updatedAt" json:"updatedAt"`
}
