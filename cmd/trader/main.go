package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/logrusorgru/aurora"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gregtusar/futures-trader/api"
	"github.com/gregtusar/futures-trader/internal/config"
	"github.com/gregtusar/futures-trader/pkg/binance"
	"github.com/gregtusar/futures-trader/pkg/trader"
)

var (
	cfgFile string
	logger  *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Binance USD-M futures trading client",
		Long:  `A trading client and dashboard backend for Binance USD-M futures with signed-request handling, clock synchronization, and order filter validation`,
		Run:   runServer,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "price <symbol>",
			Short: "Print the current price for a symbol",
			Args:  cobra.ExactArgs(1),
			Run:   runPrice,
		},
		&cobra.Command{
			Use:   "account",
			Short: "Print the account summary",
			Run:   runAccount,
		},
		&cobra.Command{
			Use:   "orders [symbol]",
			Short: "List open orders, optionally for one symbol",
			Args:  cobra.MaximumNArgs(1),
			Run:   runOrders,
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newSession() (*trader.Session, *config.Config) {
	// .env is optional; real deployments use config.yaml or GCP secrets
	_ = godotenv.Load()

	logger = logrus.New()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.WithError(err).Error("Failed to open log file, logging to stderr")
		} else {
			logger.SetOutput(f)
		}
	}

	if cfg.Binance.APIKey == "" || cfg.Binance.APISecret == "" {
		logger.Fatal("Binance API credentials are required (BINANCE_API_KEY / BINANCE_API_SECRET)")
	}

	client := binance.New(cfg.Binance.APIKey, cfg.Binance.APISecret, cfg.Binance.Testnet, logger)
	client.SetTimeout(time.Duration(cfg.Binance.TimeoutSeconds) * time.Second)
	client.SetRecvWindow(cfg.Binance.RecvWindowMs)
	client.Clock().SetResyncInterval(time.Duration(cfg.Binance.ResyncIntervalSeconds) * time.Second)

	return trader.NewSession(client, logger), cfg
}

func runServer(cmd *cobra.Command, args []string) {
	session, cfg := newSession()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := session.TestConnection(ctx); err != nil {
		logger.WithError(err).Fatal("Connection test failed")
	}

	apiServer := api.NewServer(session, logger, fmt.Sprintf("%d", cfg.Server.Port))
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Trader is running. Press Ctrl+C to stop.")

	<-sigChan
	logger.Info("Received shutdown signal")

	cancel()
	logger.Info("Trader stopped")
}

func runPrice(cmd *cobra.Command, args []string) {
	session, _ := newSession()
	symbol := strings.ToUpper(args[0])

	price, err := session.GetCurrentPrice(context.Background(), symbol)
	if err != nil {
		fmt.Println(aurora.Red(err.Error()))
		os.Exit(1)
	}

	fmt.Printf("%s %s\n", aurora.Bold(aurora.Cyan(symbol)), aurora.Green(fmt.Sprintf("%f", price)))
}

func runAccount(cmd *cobra.Command, args []string) {
	session, _ := newSession()

	summary := session.GetAccountSummary(context.Background())
	if summary.Err {
		fmt.Println(aurora.Red(fmt.Sprintf("account unavailable: %s", summary.ErrMessage)))
		os.Exit(1)
	}

	fmt.Printf("Total Balance:     %s USDT\n", aurora.Bold(aurora.Green(fmt.Sprintf("%.4f", summary.TotalBalance))))
	fmt.Printf("Available Balance: %s USDT\n", aurora.Green(fmt.Sprintf("%.4f", summary.AvailableBalance)))
	pnl := aurora.Green(fmt.Sprintf("%.4f", summary.UnrealizedPnl))
	if summary.UnrealizedPnl < 0 {
		pnl = aurora.Red(fmt.Sprintf("%.4f", summary.UnrealizedPnl))
	}
	fmt.Printf("Unrealized PnL:    %s USDT\n", pnl)

	for _, p := range summary.Positions {
		fmt.Printf("  %s amt=%s entry=%s upnl=%s\n",
			aurora.Cyan(p.Symbol), p.PositionAmt, p.EntryPrice, p.UnrealizedProfit)
	}
}

func runOrders(cmd *cobra.Command, args []string) {
	session, _ := newSession()

	symbol := ""
	if len(args) > 0 {
		symbol = strings.ToUpper(args[0])
	}

	orders, err := session.GetOpenOrders(context.Background(), symbol)
	if err != nil {
		fmt.Println(aurora.Red(err.Error()))
		os.Exit(1)
	}

	if len(orders) == 0 {
		fmt.Println("No open orders")
		return
	}

	for _, o := range orders {
		side := aurora.Green(string(o.Side))
		if o.Side == "SELL" {
			side = aurora.Red(string(o.Side))
		}
		fmt.Printf("%d %s %s %s qty=%s price=%s status=%s\n",
			o.OrderID, aurora.Cyan(o.Symbol), side, o.Type, o.OrigQty, o.Price, o.Status)
	}
}
