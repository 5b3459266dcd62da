// auctionwatch opens a live view of one auction: it streams accepted bids to
// the log, optionally places a bid, and drives the deposit top-up round-trip
// that a browser would complete against the payment gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyunsoo-dev/liveauction/internal/auction"
	"github.com/hyunsoo-dev/liveauction/internal/config"
	"github.com/hyunsoo-dev/liveauction/internal/platform"
	"github.com/hyunsoo-dev/liveauction/internal/realtime"
	"github.com/hyunsoo-dev/liveauction/internal/resume"
	"github.com/hyunsoo-dev/liveauction/internal/view"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	auctionID := flag.String("auction", "", "auction id to watch")
	userID := flag.String("user", "", "authenticated user id (empty for anonymous)")
	bid := flag.Int64("bid", 0, "bid amount to place once the view is open")
	gatewayOrder := flag.String("gateway-order", "", "order id of a completed gateway round-trip")
	gatewayOK := flag.Bool("gateway-ok", true, "whether the gateway round-trip succeeded")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	if *auctionID == "" {
		log.Fatal().Msg("an auction id is required (-auction)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := platform.NewClient(cfg.API.BaseURL, cfg.API.Token)
	api.SetTimeout(cfg.API.Timeout)

	intentPath := cfg.Resume.Path
	if intentPath == "" {
		intentPath, err = resume.DefaultPath()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to resolve resume intent path")
		}
	}
	intents := resume.NewFileStore(intentPath)

	transport, err := buildTransport(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build push transport")
	}

	guardConfig := auction.DefaultGuardConfig()
	guardConfig.MaxIntentAge = cfg.Resume.MaxAge

	v, err := view.Open(ctx, view.Options{
		AuctionID: *auctionID,
		UserID:    *userID,
		API:       api,
		Transport: transport,
		Intents:   intents,
		Supervisor: realtime.Config{
			ReconnectDelay: cfg.Push.ReconnectDelay,
			MaxRetries:     cfg.Push.MaxRetries,
		},
		Guard:    guardConfig,
		PageSize: cfg.History.PageSize,
		OnStateChange: func(state realtime.State) {
			log.Info().Stringer("state", state).Msg("connection state")
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open auction view")
	}
	defer v.Close()

	if *gatewayOrder != "" {
		result := auction.GatewayResult{OrderID: *gatewayOrder, Succeeded: *gatewayOK}
		if !*gatewayOK {
			result.Message = "payment was not completed"
		}
		if err := v.ResumeAfterTopUp(ctx, result); err != nil {
			log.Error().Err(err).Msg("resume after top-up failed")
		}
	}

	if *bid > 0 {
		placeBid(ctx, v, auction.Money(*bid))
	}

	snapshot := v.Snapshot()
	log.Info().
		Str("auction_id", snapshot.AuctionID).
		Str("status", string(snapshot.Status)).
		Int64("current_bid", int64(snapshot.CurrentBid)).
		Int("history_rows", len(v.History()[0].Bids)).
		Msg("watching auction")

	<-ctx.Done()
	log.Info().Msg("shutting down")
}

// placeBid submits a bid and walks the user through the deposit flow when one
// is still required.
func placeBid(ctx context.Context, v *view.AuctionView, amount auction.Money) {
	err := v.PlaceBid(ctx, amount)
	if err == nil {
		log.Info().Int64("amount", int64(amount)).Msg("bid accepted for submission")
		return
	}

	if errors.Is(err, auction.ErrDepositRequired) {
		if err = v.RequestParticipation(ctx); err == nil {
			placeAfterDeposit(ctx, v, amount)
			return
		}
		var insufficient *auction.InsufficientFundsError
		if errors.As(err, &insufficient) {
			order, topUpErr := v.BeginTopUp(ctx, insufficient.RecommendedCharge, amount)
			if topUpErr != nil {
				log.Error().Err(topUpErr).Msg("failed to start deposit top-up")
				return
			}
			log.Info().
				Str("order_id", order.OrderID).
				Str("checkout_url", order.CheckoutURL).
				Int64("charge", int64(order.Amount)).
				Msg("complete the checkout, then re-run with -gateway-order")
			return
		}
	}
	log.Error().Err(err).Msg("bid rejected")
}

func placeAfterDeposit(ctx context.Context, v *view.AuctionView, amount auction.Money) {
	if err := v.PlaceBid(ctx, amount); err != nil {
		log.Error().Err(err).Msg("bid rejected")
		return
	}
	log.Info().Int64("amount", int64(amount)).Msg("bid accepted for submission")
}

func buildTransport(cfg *config.Config) (realtime.Transport, error) {
	switch cfg.Push.Transport {
	case "nats":
		return realtime.NewNATSTransport(realtime.DefaultNATSConfig(cfg.Push.URL)), nil
	case "", "websocket":
		return realtime.NewWebSocketTransport(realtime.DefaultWebSocketConfig(cfg.Push.URL)), nil
	default:
		return nil, errors.New("unknown push transport: " + cfg.Push.Transport)
	}
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
