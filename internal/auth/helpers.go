package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// generateOTP は6桁の数字の確認コードを生成する。
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// generatePatientSerial は患者シリアルを生成する（PAT-YYYYMMDD-XXXX）。
// 末尾はランダムな大文字16進4文字。衝突はストアの一意インデックスが検出する。
func generatePatientSerial(now time.Time) (string, error) {
	buf := make([]byte, 2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	suffix := strings.ToUpper(hex.EncodeToString(buf))
	return fmt.Sprintf("PAT-%s-%s", now.Format("20060102"), suffix), nil
}

// normalizeDoctorName は医師の表示名に敬称を付ける。
// 既に"Dr"で始まる場合（大文字小文字問わず）はそのまま返す。
func normalizeDoctorName(name string) string {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "dr.") || strings.HasPrefix(lower, "dr ") {
		return name
	}
	return "Dr. " + name
}

// maskEmail は表示用にメールアドレスのローカル部を伏せる。
func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return local[:1] + "***" + domain
	}
	return local[:2] + "***" + domain
}
