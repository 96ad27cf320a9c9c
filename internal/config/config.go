package config

import (
	"fmt"
	"os"
	"strconv"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5433）

	JWTSecret string // JWT署名シークレット

	GoEnv string // dev/prod
	FEURL string // フロントURL（CORSなどで使う）

	// 決済確認ポーリング
	VerifyMaxAttempts     int // 1回のverifyでの最大ポーリング回数
	VerifyIntervalSeconds int // ポーリング間隔（秒）

	// 通知（Kafka）。ブローカー未設定ならログ通知にフォールバック
	KafkaBrokers      string
	NotificationTopic string

	// PhonePe
	PhonePeMerchantID      string
	PhonePeClientID        string
	PhonePeClientSecret    string
	PhonePeClientVersion   string
	PhonePeSaltKey         string
	PhonePeSaltIndex       string
	PhonePeEnvironment     string // SANDBOX / PRODUCTION
	PhonePeWebhookUsername string
	PhonePeWebhookPassword string

	// Razorpay
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string

	// 決済完了後にユーザーを戻すURL
	PaymentRedirectURL string
}

// Loadは環境変数
func Load() (Config, error) {
	pgPort, err := mustAtoi("POSTGRES_PORT")
	if err != nil {
		return Config{}, err
	}

	verifyAttempts, err := atoiOrDefault("VERIFY_MAX_ATTEMPTS", 5)
	if err != nil {
		return Config{}, err
	}
	verifyInterval, err := atoiOrDefault("VERIFY_INTERVAL_SECONDS", 3)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port: os.Getenv("PORT"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     pgPort,

		JWTSecret: os.Getenv("JWT_SECRET"),

		GoEnv: os.Getenv("GO_ENV"),
		FEURL: os.Getenv("FE_URL"),

		VerifyMaxAttempts:     verifyAttempts,
		VerifyIntervalSeconds: verifyInterval,

		KafkaBrokers:      os.Getenv("KAFKA_BROKERS"),
		NotificationTopic: getenvOrDefault("NOTIFICATION_TOPIC", "order-notifications"),

		PhonePeMerchantID:      os.Getenv("PHONEPE_MERCHANT_ID"),
		PhonePeClientID:        os.Getenv("PHONEPE_CLIENT_ID"),
		PhonePeClientSecret:    os.Getenv("PHONEPE_CLIENT_SECRET"),
		PhonePeClientVersion:   os.Getenv("PHONEPE_CLIENT_VERSION"),
		PhonePeSaltKey:         os.Getenv("PHONEPE_SALT_KEY"),
		PhonePeSaltIndex:       os.Getenv("PHONEPE_SALT_INDEX"),
		PhonePeEnvironment:     os.Getenv("PHONEPE_ENVIRONMENT"),
		PhonePeWebhookUsername: os.Getenv("PHONEPE_WEBHOOK_USERNAME"),
		PhonePeWebhookPassword: os.Getenv("PHONEPE_WEBHOOK_PASSWORD"),

		RazorpayKeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),

		PaymentRedirectURL: os.Getenv("PAYMENT_REDIRECT_URL"),
	}

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.PostgresUser == "" {
		return Config{}, fmt.Errorf("POSTGRES_USER is required")
	}
	if cfg.PostgresPassword == "" {
		return Config{}, fmt.Errorf("POSTGRES_PASSWORD is required")
	}
	if cfg.PostgresDB == "" {
		return Config{}, fmt.Errorf("POSTGRES_DB is required")
	}
	if cfg.PostgresHost == "" {
		return Config{}, fmt.Errorf("POSTGRES_HOST is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.GoEnv == "" {
		return Config{}, fmt.Errorf("GO_ENV is required")
	}
	if cfg.VerifyMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("VERIFY_MAX_ATTEMPTS must be positive")
	}
	if cfg.VerifyIntervalSeconds <= 0 {
		return Config{}, fmt.Errorf("VERIFY_INTERVAL_SECONDS must be positive")
	}

	return cfg, nil
}

func mustAtoi(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func getenvOrDefault(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiOrDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}
