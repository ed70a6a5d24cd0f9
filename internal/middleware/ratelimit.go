package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/neuroscan/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	SignupRate   rate.Limit // サインアップのレート（req/sec）。5/3600
	SignupBurst  int        // サインアップのバーストサイズ
	VerifyRate   rate.Limit // メール検証・再送のレート（req/sec）。5/3600
	VerifyBurst  int        // メール検証・再送のバーストサイズ
	LoginRate    rate.Limit // ログインのレート（req/sec）。10/600
	LoginBurst   int        // ログインのバーストサイズ
	GeneralRate  rate.Limit // 認証済みAPI全般のレート（req/sec）。120/60
	GeneralBurst int        // 認証済みAPI全般のバーストサイズ

	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 要件: サインアップ 5 req/h/IP、検証 5 req/h/IP、ログイン 10 req/10min/IP、
// 認証済みAPI全般 120 req/min/user
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		SignupRate:      rate.Limit(5.0 / 3600.0),
		SignupBurst:     5,
		VerifyRate:      rate.Limit(5.0 / 3600.0),
		VerifyBurst:     5,
		LoginRate:       rate.Limit(10.0 / 600.0),
		LoginBurst:      10,
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyedLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterClass は1種類のレート制限（レート、バースト、キー別エントリ）を管理する。
type limiterClass struct {
	name  string
	rate  rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*keyedLimiter
}

func newLimiterClass(name string, r rate.Limit, burst int) *limiterClass {
	return &limiterClass{
		name:    name,
		rate:    r,
		burst:   burst,
		entries: make(map[string]*keyedLimiter),
	}
}

// allow はキーのリミッターを取得または作成し、1リクエスト分の許可を判定する。
func (lc *limiterClass) allow(key string) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	entry, exists := lc.entries[key]
	if !exists {
		entry = &keyedLimiter{limiter: rate.NewLimiter(lc.rate, lc.burst)}
		lc.entries[key] = entry
	}
	entry.lastAccess = time.Now()
	return entry.limiter.Allow()
}

// cleanup は最終アクセス時刻がttlを超えたエントリを削除する。
func (lc *limiterClass) cleanup(ttl time.Duration) {
	now := time.Now()
	lc.mu.Lock()
	defer lc.mu.Unlock()
	for key, entry := range lc.entries {
		if now.Sub(entry.lastAccess) > ttl {
			delete(lc.entries, key)
		}
	}
}

func (lc *limiterClass) count() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return len(lc.entries)
}

// RateLimiter は未認証ルート向けのIP別レート制限と、認証済みルート向けの
// ユーザー別レート制限を管理する。
type RateLimiter struct {
	config  RateLimiterConfig
	signup  *limiterClass
	verify  *limiterClass
	login   *limiterClass
	general *limiterClass

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		signup:  newLimiterClass("signup", config.SignupRate, config.SignupBurst),
		verify:  newLimiterClass("verify", config.VerifyRate, config.VerifyBurst),
		login:   newLimiterClass("login", config.LoginRate, config.LoginBurst),
		general: newLimiterClass("general", config.GeneralRate, config.GeneralBurst),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// SignupMiddleware はサインアップ専用のIP別レート制限ミドルウェアを返す。
func (rl *RateLimiter) SignupMiddleware() func(next http.Handler) http.Handler {
	return rl.ipKeyedMiddleware(rl.signup)
}

// VerifyMiddleware はメール検証・再送専用のIP別レート制限ミドルウェアを返す。
func (rl *RateLimiter) VerifyMiddleware() func(next http.Handler) http.Handler {
	return rl.ipKeyedMiddleware(rl.verify)
}

// LoginMiddleware はログイン専用のIP別レート制限ミドルウェアを返す。
func (rl *RateLimiter) LoginMiddleware() func(next http.Handler) http.Handler {
	return rl.ipKeyedMiddleware(rl.login)
}

// GeneralMiddleware は認証済みAPI全般のユーザー別レート制限ミドルウェアを返す。
// リクエストコンテキストに認証済みユーザーが必要（NewAuthMiddlewareの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewMissingTokenError())
				return
			}

			if !rl.general.allow(user.ID) {
				writeRateLimitResponse(w, rl.general.rate)
				slog.Warn("rate limit exceeded",
					slog.String("limit_type", rl.general.name),
					slog.String("user_id", user.ID),
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているユーザー別リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.count()
}

func (rl *RateLimiter) ipKeyedMiddleware(class *limiterClass) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !class.allow(ip) {
				writeRateLimitResponse(w, class.rate)
				slog.Warn("rate limit exceeded",
					slog.String("limit_type", class.name),
					slog.String("ip", ip),
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP はリクエスト元IPアドレスを特定する。
// リバースプロキシ経由の場合はX-Forwarded-Forの先頭を採用する。
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ttl := rl.config.CleanupInterval * 2
			rl.signup.cleanup(ttl)
			rl.verify.cleanup(ttl)
			rl.login.cleanup(ttl)
			rl.general.cleanup(ttl)
		case <-rl.stopCh:
			return
		}
	}
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))

	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
