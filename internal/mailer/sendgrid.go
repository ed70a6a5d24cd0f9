package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridMailer はSendGrid APIを使用したMailer実装。
type SendGridMailer struct {
	client   *sendgrid.Client
	fromName string
	fromAddr string
}

// NewSendGridMailer はSendGridMailerを生成する。
func NewSendGridMailer(apiKey, fromName, fromAddr string) *SendGridMailer {
	return &SendGridMailer{
		client:   sendgrid.NewSendClient(apiKey),
		fromName: fromName,
		fromAddr: fromAddr,
	}
}

// SendVerificationCode は確認コードを送信する。
func (m *SendGridMailer) SendVerificationCode(ctx context.Context, toEmail, toName, code string) error {
	subject := "【NeuroScan】メールアドレスの確認"
	body := fmt.Sprintf(
		"%s 様\n\n以下の確認コードを入力してメールアドレスの確認を完了してください。\n\n確認コード: %s\n\nこのコードは15分間有効です。\n心当たりがない場合はこのメールを無視してください。",
		toName, code,
	)
	return m.send(ctx, toEmail, toName, subject, body)
}

// SendDoctorAssignment は担当医決定の通知を患者に送信する。
func (m *SendGridMailer) SendDoctorAssignment(ctx context.Context, toEmail, toName, doctorName string) error {
	subject := "【NeuroScan】担当医が決定しました"
	body := fmt.Sprintf(
		"%s 様\n\n担当医として %s が割り当てられました。\n初回の診察予約が作成されていますので、ログインしてご確認ください。",
		toName, doctorName,
	)
	return m.send(ctx, toEmail, toName, subject, body)
}

// SendNewReport は新しい診断レポート到着の通知を担当医に送信する。
func (m *SendGridMailer) SendNewReport(ctx context.Context, toEmail, toName, patientName string) error {
	subject := "【NeuroScan】新しい診断レポートが届いています"
	body := fmt.Sprintf(
		"%s 先生\n\n担当患者 %s 様の新しいスキャン結果がアップロードされました。\nログインしてレポートをご確認ください。",
		toName, patientName,
	)
	return m.send(ctx, toEmail, toName, subject, body)
}

// SendReportStatus はレポートのレビュー完了通知を患者に送信する。
func (m *SendGridMailer) SendReportStatus(ctx context.Context, toEmail, toName, status string) error {
	subject := "【NeuroScan】診断レポートが更新されました"
	body := fmt.Sprintf(
		"%s 様\n\n診断レポートのステータスが「%s」に更新されました。\nログインして担当医の所見をご確認ください。",
		toName, status,
	)
	return m.send(ctx, toEmail, toName, subject, body)
}

// SendAdminCredentials は新規管理者に初期認証情報を送信する。
func (m *SendGridMailer) SendAdminCredentials(ctx context.Context, toEmail, toName, password string) error {
	subject := "【NeuroScan】管理者アカウントが作成されました"
	body := fmt.Sprintf(
		"%s 様\n\n管理者アカウントが作成されました。\n\nメールアドレス: %s\n初期パスワード: %s\n\nログイン後、速やかにパスワードを変更してください。",
		toName, toEmail, password,
	)
	return m.send(ctx, toEmail, toName, subject, body)
}

func (m *SendGridMailer) send(ctx context.Context, toEmail, toName, subject, body string) error {
	from := mail.NewEmail(m.fromName, m.fromAddr)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmailPlainText(from, subject, to, body)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("failed to send mail: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// compile-time interface check
var _ Mailer = (*SendGridMailer)(nil)
