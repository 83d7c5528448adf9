// restowatch logs into the platform, joins a restaurant room and prints
// incoming order events. It is the smallest end-to-end exercise of the SDK
// wiring.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/restomate/restokit"
	"github.com/restomate/restokit/config"
	"github.com/restomate/restokit/domain"
)

type printer struct{}

func (printer) OnConnected(room string) {
	fmt.Printf("connected to room %s\n", room)
}

func (printer) OnDisconnected(room string, err error) {
	fmt.Printf("disconnected from room %s: %v\n", room, err)
}

func (printer) OnOrderCreated(order domain.Order) {
	fmt.Printf("new order #%d (%s) total %s\n", order.Number, order.ID, order.Total)
}

func (printer) OnOrderUpdated(order domain.Order) {
	fmt.Printf("order #%d is now %s\n", order.Number, order.Status)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	if cfg.LogPretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = logger

	ctx := logger.WithContext(context.Background())

	app, err := restokit.New(cfg, restokit.WithRealtimeHandler(printer{}))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build SDK")
	}
	defer app.Close()

	email := os.Getenv("RESTOKIT_EMAIL")
	password := os.Getenv("RESTOKIT_PASSWORD")
	if email == "" || password == "" {
		logger.Fatal().Msg("RESTOKIT_EMAIL and RESTOKIT_PASSWORD must be set")
	}

	user, err := app.Auth.Login(ctx, email, password)
	if err != nil {
		logger.Fatal().Err(err).Msg("login failed")
	}

	orders, err := app.FetchOrders(ctx, user.RestaurantID, "")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to fetch orders")
	}
	fmt.Printf("%d open orders\n", len(orders))

	if err := app.Realtime.JoinRoom(ctx, user.RestaurantID); err != nil {
		logger.Fatal().Err(err).Msg("failed to join room")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if err := app.Auth.Logout(ctx); err != nil {
		logger.Warn().Err(err).Msg("logout failed")
	}
}
