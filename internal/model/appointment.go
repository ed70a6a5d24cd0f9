package model

import "time"

// AppointmentStatus は予約の進行状態。
type AppointmentStatus string

const (
	// AppointmentStatusScheduled は作成直後の予約。
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	// AppointmentStatusApproved は医師が承認した予約。
	AppointmentStatusApproved AppointmentStatus = "approved"
	// AppointmentStatusDenied は医師が却下した予約。
	AppointmentStatusDenied AppointmentStatus = "denied"
	// AppointmentStatusCompleted は実施済みの予約。
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

// Appointment は医師と患者の診察予約を表す。
// 医師割り当て時に管理者が作成し、医師が状態を更新する。
type Appointment struct {
	ID        string            `bson:"_id,omitempty" json:"id"`
	DoctorID  string            `bson:"doctor" json:"doctorId"`
	PatientID string            `bson:"patient" json:"patientId"`
	Date      time.Time         `bson:"date" json:"date"`
	Status    AppointmentStatus `bson:"status" json:"status"`
	CreatedAt time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time         `bson:"updatedAt" json:"updatedAt"`
}
