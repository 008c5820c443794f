package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/spotdex/params"
	"github.com/uhyunpark/spotdex/pkg/api"
	"github.com/uhyunpark/spotdex/pkg/app/core/asset"
	"github.com/uhyunpark/spotdex/pkg/app/core/ledger"
	"github.com/uhyunpark/spotdex/pkg/app/spot"
	"github.com/uhyunpark/spotdex/pkg/stream"
	"github.com/uhyunpark/spotdex/pkg/util"
)

// custody is the exchange's own account at hosted devnet tokens.
var custody = common.BytesToAddress([]byte("spotdex-custody"))

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	var logger *zap.Logger
	var err error
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("node_starting", "listen", cfg.Node.ListenAddr, "db", cfg.Node.DBPath)

	// ---- Ledger + registry ----
	store, err := ledger.NewStore(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "err", err)
	}
	defer store.Close()

	registry := asset.NewRegistry(cfg.Exchange.Admin, cfg.Exchange.NativeSymbol)
	led := ledger.NewLedger(registry, asset.NopRail{}, store, sugar)
	sugar.Infow("registry_ready",
		"admin", registry.Admin().Hex(),
		"native", registry.NativeSymbol())

	// ---- Matching engine ----
	ex := spot.New(registry, led, util.RealClock{}, sugar)

	// Devnet token dialer: every external handle resolves to an
	// in-process hosted token. A production deployment would dial the
	// token contract here instead.
	var (
		hostedMu sync.Mutex
		hosted   = make(map[common.Address]*asset.HostedToken)
	)
	dialer := func(addr common.Address) asset.Token {
		hostedMu.Lock()
		defer hostedMu.Unlock()
		tok, ok := hosted[addr]
		if !ok {
			tok = asset.NewHostedToken(custody)
			hosted[addr] = tok
		}
		return tok
	}

	// ---- API + fill streaming ----
	server := api.NewServer(ex, dialer, sugar)

	notifiers := spot.MultiNotifier{server}
	if len(cfg.Stream.KafkaBrokers) > 0 {
		producer := stream.NewProducer(cfg.Stream.KafkaBrokers, cfg.Stream.KafkaTopic, sugar)
		defer producer.Close()
		notifiers = append(notifiers, producer)
		sugar.Infow("fill_stream_enabled", "brokers", cfg.Stream.KafkaBrokers, "topic", cfg.Stream.KafkaTopic)
	}
	ex.SetNotifier(notifiers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.Start(cfg.Node.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("node_shutting_down")
}
