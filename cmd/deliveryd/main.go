package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quickserve/food-dispatch/internal/clients"
	"github.com/quickserve/food-dispatch/internal/config"
	"github.com/quickserve/food-dispatch/internal/delivery"
	"github.com/quickserve/food-dispatch/internal/event"
	"github.com/quickserve/food-dispatch/internal/httpx"
	kafkax "github.com/quickserve/food-dispatch/internal/kafka"
	"github.com/quickserve/food-dispatch/internal/notify"
	"github.com/quickserve/food-dispatch/internal/postgres"
	"github.com/quickserve/food-dispatch/internal/redisx"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
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

	prod := kafkax.NewProducer(cfg.KafkaBrokers, event.TopicAgentRegistered, 1024)
	prod.Start(ctx)

	repo := &delivery.Repo{DB: db}
	orderClient := clients.NewOrderClient(cfg.OrderServiceURL, cfg.ServiceCallTimeout)
	fanout := &notify.Fanout{
		Sink:      notify.LogSink{},
		Directory: clients.NewUserClient(cfg.UserServiceURL, cfg.ServiceCallTimeout),
	}
	dedup := redisx.Dedup{R: rdb, Service: "delivery"}

	assigner := &delivery.Assigner{
		Store:    repo,
		Orders:   orderClient,
		Notifier: fanout,
	}

	router := httpx.NewRouter()
	dh := &httpx.DeliveryHandler{
		Assigner:     assigner,
		Registration: &delivery.Registration{Producer: prod, ServiceName: cfg.ServiceName},
		Store:        repo,
	}
	dh.Register(router)

	group := getenv("DELIVERY_GROUP", "delivery-svc")
	workers := mustAtoi(os.Getenv("DELIVERY_WORKERS"), "8")

	orderSub := &delivery.OrderCreatedSubscriber{Store: repo, Orders: orderClient, Dedup: dedup}
	orderCons := kafkax.NewConsumer(cfg.KafkaBrokers, group, event.TopicOrderCreated, workers)
	go func() {
		log.Printf("order-created consumer started: group=%s topic=%s workers=%d", group, event.TopicOrderCreated, workers)
		if err := orderCons.Start(ctx, orderSub.Handle); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	agentSub := &delivery.AgentRegisteredSubscriber{Store: repo, Dedup: dedup}
	agentCons := kafkax.NewConsumer(cfg.KafkaBrokers, group, event.TopicAgentRegistered, 2)
	go func() {
		log.Printf("agent-registered consumer started: group=%s topic=%s", group, event.TopicAgentRegistered)
		if err := agentCons.Start(ctx, agentSub.Handle); err != nil {
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
