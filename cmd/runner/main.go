package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/shopspring/decimal"

	"solana-market-maker/book"
	"solana-market-maker/config"
	"solana-market-maker/gateway"
	"solana-market-maker/infrastructure/logger"
	"solana-market-maker/maker"
	"solana-market-maker/metrics"
	"solana-market-maker/model"
	"solana-market-maker/strategy"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "config file path")
	metricsAddr := flag.String("metricsAddr", ":9100", "Prometheus metrics listen address, empty disables")
	dryRun := flag.Bool("dryRun", false, "force dry run regardless of config")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dryRun {
		cfg.Gateway.DryRun = true
	}

	appLog, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Outputs:    cfg.Log.Outputs,
		OutputFile: cfg.Log.OutputFile,
		ErrorFile:  cfg.Log.ErrorFile,
		Format:     cfg.Log.Format,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer appLog.Close()

	if *metricsAddr != "" {
		metrics.StartMetricsServer(*metricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := maker.New(engineOptions(cfg), collaborators(cfg), appLog)
	if err := client.Connect(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}

	started := startMarkets(ctx, client, cfg, appLog)
	if len(started) == 0 {
		log.Fatalf("no market started")
	}

	watcher, err := config.NewWatcher(*cfgPath, 5*time.Second)
	if err != nil {
		log.Fatalf("config watcher: %v", err)
	}
	// Engine options are fixed for the life of the process; a reload is
	// logged so operators know a restart is needed to apply it.
	err = watcher.Start(ctx,
		func(config.AppConfig) {
			appLog.LogMarketEvent("config_reloaded", "", map[string]interface{}{"note": "restart to apply engine changes"})
		},
		func(err error) {
			appLog.LogError(err, "", map[string]interface{}{"op": "config_reload"})
		})
	if err != nil {
		log.Fatalf("watch config: %v", err)
	}
	defer watcher.Stop()

	if cfg.Gateway.DryRun {
		go syntheticFeed(ctx, client, started, appLog)
	} else {
		go runFeed(ctx, cfg.Gateway.FeedURL, started, client, appLog)
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	for _, market := range started {
		rec, err := client.StopMarketMaking(stopCtx, market)
		if err != nil {
			appLog.LogError(err, market, map[string]interface{}{"op": "shutdown_stop"})
			continue
		}
		appLog.LogMarketEvent("session_complete", market, map[string]interface{}{
			"duration": rec.Duration.String(),
			"quotes":   rec.QuoteCount,
			"pnl":      rec.PnL.String(),
		})
	}
}

func engineOptions(cfg config.AppConfig) maker.Options {
	opts := maker.DefaultOptions()
	opts.DefaultSpread = decimal.NewFromFloat(cfg.Engine.DefaultSpread)
	opts.MaxInventoryRatio = decimal.NewFromFloat(cfg.Engine.MaxInventoryRatio)
	opts.OrderRefresh = time.Duration(cfg.Engine.OrderRefreshSeconds) * time.Second
	opts.MinOrderSize = decimal.NewFromFloat(cfg.Engine.MinOrderSize)
	opts.ToxicCooloff = time.Duration(cfg.Engine.ToxicCooloffSeconds) * time.Second

	if cfg.Model.BaseSpread > 0 {
		opts.SpreadModel = model.SpreadModelConfig{
			BaseSpread:       decimal.NewFromFloat(cfg.Model.BaseSpread),
			VolatilityFactor: decimal.NewFromFloat(cfg.Model.VolatilityFactor),
			VolumeFactor:     decimal.NewFromFloat(cfg.Model.VolumeFactor),
			ImbalanceFactor:  decimal.NewFromFloat(cfg.Model.ImbalanceFactor),
			Floor:            decimal.NewFromFloat(cfg.Model.SpreadFloor),
			ImbalanceLevels:  cfg.Model.ImbalanceLevels,
		}
	}
	if cfg.Flow.WindowSize > 0 {
		opts.FlowModel = model.FlowModelConfig{
			Levels:     cfg.Flow.Levels,
			WindowSize: cfg.Flow.WindowSize,
			Threshold:  decimal.NewFromFloat(cfg.Flow.Threshold),
		}
	}
	return opts
}

// collaborators wires the external dependencies. Protocol adapters for
// live venues live outside this module; without them execution runs
// against the in-memory simulators even when a live feed is attached.
func collaborators(cfg config.AppConfig) maker.Collaborators {
	return maker.Collaborators{
		Chain:    &gateway.SimChain{},
		Data:     gateway.NewSimMarketData(),
		Executor: gateway.NewSimExecutor(),
		Wallet:   gateway.NewSimWallet(),
	}
}

func startMarkets(ctx context.Context, client *maker.Client, cfg config.AppConfig, appLog *logger.Logger) []string {
	names := make([]string, 0, len(cfg.Markets))
	for market := range cfg.Markets {
		names = append(names, market)
	}
	sort.Strings(names)

	started := make([]string, 0, len(names))
	for _, market := range names {
		mc := cfg.Markets[market]
		params := strategy.Params{}
		if mc.Spread > 0 {
			params[strategy.ParamSpread] = decimal.NewFromFloat(mc.Spread)
		}
		_, err := client.StartMarketMaking(ctx, market, mc.Strategy,
			decimal.NewFromFloat(mc.BaseAmount),
			decimal.NewFromFloat(mc.QuoteAmount),
			params)
		if err != nil {
			appLog.LogError(err, market, map[string]interface{}{"op": "start"})
			continue
		}
		started = append(started, market)
	}
	return started
}

// runFeed keeps the depth feed alive, reconnecting with backoff until
// the context ends.
func runFeed(ctx context.Context, url string, markets []string, sink gateway.BookSink, appLog *logger.Logger) {
	backoff := time.Second
	for ctx.Err() == nil {
		feed := gateway.NewDepthFeed(url, markets...)
		err := feed.Run(ctx, sink)
		if ctx.Err() != nil {
			return
		}
		appLog.LogError(err, "", map[string]interface{}{"op": "depth_feed"})
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// syntheticFeed drives the engine with random walk books so a dry run
// exercises the whole quoting path without a venue.
func syntheticFeed(ctx context.Context, sink gateway.BookSink, markets []string, appLog *logger.Logger) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	mids := make(map[string]float64, len(markets))
	for _, m := range markets {
		mids[m] = 100 + rng.Float64()*50
	}
	appLog.LogMarketEvent("synthetic_feed_started", "", map[string]interface{}{"markets": markets})

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, m := range markets {
				mids[m] *= 1 + (rng.Float64()-0.5)*0.002
				bids, asks := syntheticBook(rng, mids[m])
				sink.UpdateOrderBook(m, bids, asks)
			}
		}
	}
}

func syntheticBook(rng *rand.Rand, mid float64) ([]book.PriceLevel, []book.PriceLevel) {
	var bids, asks []book.PriceLevel
	tick := mid * 0.0005
	for i := 1; i <= 10; i++ {
		bids = append(bids, book.PriceLevel{
			Price: decimal.NewFromFloat(mid - tick*float64(i)),
			Size:  decimal.NewFromFloat(1 + rng.Float64()*4),
		})
		asks = append(asks, book.PriceLevel{
			Price: decimal.NewFromFloat(mid + tick*float64(i)),
			Size:  decimal.NewFromFloat(1 + rng.Float64()*4),
		})
	}
	return bids, asks
}
