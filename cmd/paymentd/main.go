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

	"github.com/quickserve/food-dispatch/internal/config"
	"github.com/quickserve/food-dispatch/internal/event"
	"github.com/quickserve/food-dispatch/internal/httpx"
	kafkax "github.com/quickserve/food-dispatch/internal/kafka"
	"github.com/quickserve/food-dispatch/internal/payments"
	"github.com/quickserve/food-dispatch/internal/postgres"
)

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

	prod := kafkax.NewProducer(cfg.KafkaBrokers, event.TopicPaymentUpdated, 1024)
	prod.Start(ctx)

	coord := &payments.Coordinator{
		Store:       &payments.Repo{DB: db},
		Producer:    prod,
		MerchantID:  cfg.MerchantID,
		Secret:      cfg.MerchantSecret,
		Currency:    cfg.Currency,
		CheckoutURL: cfg.CheckoutURL,
		ServiceName: cfg.ServiceName,
	}

	router := httpx.NewRouter()
	ph := &httpx.PaymentsHandler{Coord: coord}
	ph.Register(router)

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
