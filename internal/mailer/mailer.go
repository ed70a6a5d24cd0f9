package mailer

import "context"

// Mailer はユーザーへの通知メール送信を抽象化する。
type Mailer interface {
	// SendVerificationCode は確認コードを送信する。
	SendVerificationCode(ctx context.Context, toEmail, toName, code string) error
	// SendDoctorAssignment は担当医決定の通知を患者に送信する。
	SendDoctorAssignment(ctx context.Context, toEmail, toName, doctorName string) error
	// SendNewReport は新しい診断レポート到着の通知を担当医に送信する。
	SendNewReport(ctx context.Context, toEmail, toName, patientName string) error
	// SendReportStatus はレポートのレビュー完了通知を患者に送信する。
	SendReportStatus(ctx context.Context, toEmail, toName, status string) error
	// SendAdminCredentials は新規管理者に初期認証情報を送信する。
	SendAdminCredentials(ctx context.Context, toEmail, toName, password string) error
}
