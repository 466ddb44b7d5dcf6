package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quickserve/food-dispatch/internal/clients"
	"github.com/quickserve/food-dispatch/internal/config"
	"github.com/quickserve/food-dispatch/internal/event"
	"github.com/quickserve/food-dispatch/internal/httpx"
	kafkax "github.com/quickserve/food-dispatch/internal/kafka"
	"github.com/quickserve/food-dispatch/internal/notify"
	"github.com/quickserve/food-dispatch/internal/orders"
	"github.com/quickserve/food-dispatch/internal/postgres"
	"github.com/quickserve/food-dispatch/internal/redisx"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, event.TopicOrderCreated, 1024)
	prod.Start(ctx)

	repo := &orders.Repo{DB: db}
	userClient := clients.NewUserClient(cfg.UserServiceURL, cfg.ServiceCallTimeout)
	fanout := &notify.Fanout{Sink: notify.LogSink{}, Directory: userClient}
	payClient := clients.NewPaymentClient(cfg.PaymentServiceURL, cfg.ServiceCallTimeout)

	checkout := &orders.CheckoutService{
		Store:       repo,
		Restaurants: clients.NewRestaurantClient(cfg.RestaurantServiceURL, cfg.ServiceCallTimeout),
		Users:       userClient,
		Payments:    payClient,
		Producer:    prod,
		Notifier:    fanout,
		ServiceName: cfg.ServiceName,
		PrepBaseMin: 10,
		PrepPerItem: 5,
		TravelMin:   30,
	}
	lifecycle := &orders.LifecycleService{
		Store:    repo,
		Payments: payClient,
		Notifier: fanout,
	}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Checkout:  checkout,
		Lifecycle: lifecycle,
		Store:     repo,
		Cache:     redisx.RedisCache{R: rdb},
	}
	oh.Register(router)

	// payment.updated consumer: confirms or compensates orders
	group := getenv("ORDER_GROUP", "order-svc")
	sub := &orders.PaymentSubscriber{
		Store: repo,
		Dedup: redisx.Dedup{R: rdb, Service: "order"},
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, event.TopicPaymentUpdated, 4)
	go func() {
		log.Printf("payment consumer started: group=%s topic=%s", group, event.TopicPaymentUpdated)
		if err := cons.Start(ctx, sub.Handle); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	cancel()
	prod.WaitClosed()
}
