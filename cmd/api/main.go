package main

import (
	"strings"
	"time"

	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/gateway"
	"app/internal/gateway/phonepe"
	"app/internal/gateway/razorpay"
	"app/internal/handler"
	"app/internal/infra/db"
	infraRepo "app/internal/infra/repository"
	"app/internal/logger"
	"app/internal/notification"
	"app/internal/server"
	"app/internal/usecase"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	//.envは無くても起動できる（本番は環境変数で渡す）
	_ = godotenv.Load("../.env")

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New("payments-api", cfg.GoEnv != "prod")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		panic(err)
	}
	if err := gormDB.AutoMigrate(
		&model.Order{},
		&model.PaymentAttempt{},
		&model.StatusHistory{},
	); err != nil {
		panic(err)
	}

	//TxManager（GORM実装）生成
	tx := infraRepo.NewTxManagerGorm(gormDB)

	//ゲートウェイは資格情報があるものだけ有効化する
	clients := map[string]gateway.Client{}

	if cfg.PhonePeMerchantID != "" {
		pp, err := phonepe.New(phonepe.Config{
			MerchantID:      cfg.PhonePeMerchantID,
			ClientID:        cfg.PhonePeClientID,
			ClientSecret:    cfg.PhonePeClientSecret,
			ClientVersion:   cfg.PhonePeClientVersion,
			SaltKey:         cfg.PhonePeSaltKey,
			SaltIndex:       cfg.PhonePeSaltIndex,
			Environment:     cfg.PhonePeEnvironment,
			WebhookUsername: cfg.PhonePeWebhookUsername,
			WebhookPassword: cfg.PhonePeWebhookPassword,
			RedirectURL:     cfg.PaymentRedirectURL,
		}, log)
		if err != nil {
			panic(err)
		}
		clients[model.PaymentMethodPhonePe] = pp
	}

	var rzp *razorpay.Client
	if cfg.RazorpayKeyID != "" {
		rzp, err = razorpay.New(razorpay.Config{
			KeyID:         cfg.RazorpayKeyID,
			KeySecret:     cfg.RazorpayKeySecret,
			WebhookSecret: cfg.RazorpayWebhookSecret,
		}, log)
		if err != nil {
			panic(err)
		}
		clients[model.PaymentMethodRazorpay] = rzp
	}

	if len(clients) == 0 {
		log.Warn("no payment gateway configured, only COD orders will work")
	}

	//通知。Kafkaブローカー未設定ならログ通知
	var notifier notification.Notifier
	if cfg.KafkaBrokers != "" {
		kn, err := notification.NewKafkaNotifier(strings.Split(cfg.KafkaBrokers, ","), cfg.NotificationTopic, log)
		if err != nil {
			panic(err)
		}
		defer kn.Close()
		notifier = kn
	} else {
		notifier = notification.NewLogNotifier(log)
	}

	//Usecase生成
	reconcileUC := usecase.NewReconcileUsecase(tx, notifier, log)
	verifyUC := usecase.NewVerifyUsecase(clients, reconcileUC,
		cfg.VerifyMaxAttempts, time.Duration(cfg.VerifyIntervalSeconds)*time.Second, log)
	checkoutUC := usecase.NewCheckoutUsecase(tx, clients, log)
	orderUC := usecase.NewOrderUsecase(tx)
	adminUC := usecase.NewAdminOrderUsecase(tx, clients, log)

	//Handler生成
	orderH := handler.NewOrderHandler(checkoutUC, orderUC)
	paymentH := handler.NewPaymentHandler(checkoutUC, verifyUC, rzp)
	webhookH := handler.NewWebhookHandler(clients, reconcileUC, log)
	adminH := handler.NewAdminOrderHandler(adminUC)

	//Server起動
	addr := cfg.Port
	if addr[0] != ':' {
		addr = ":" + addr
	}

	log.Info("starting server", zap.String("addr", addr))
	if err := server.Start(addr, cfg, orderH, paymentH, webhookH, adminH); err != nil {
		panic(err)
	}
}
