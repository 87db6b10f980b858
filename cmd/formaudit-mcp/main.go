package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/adityalohuni/formaudit/internal/artifact"
	"github.com/adityalohuni/formaudit/internal/auditsvc"
	"github.com/adityalohuni/formaudit/internal/browser/wsbrowser"
	"github.com/adityalohuni/formaudit/internal/config"
	"github.com/adityalohuni/formaudit/internal/logging"
	"github.com/adityalohuni/formaudit/internal/mcpserver"
	"github.com/adityalohuni/formaudit/internal/wsbridge"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/formaudit/config.toml)")
	addr := flag.String("ws", "", "websocket listen address for the extension (default daemon.addr)")
	flag.Parse()

	settings, err := config.LoadOrCreate(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	// stdout carries the MCP stream; logging writes to stderr.
	logger := logging.Must(settings.LogLevel, settings.LogFormat)
	defer func() { _ = logger.Sync() }()

	bridge := wsbridge.NewBridge(wsbridge.Options{
		CheckOrigin: func(r *http.Request) bool { return true },
		Logger:      logger,
	})

	listen := settings.DaemonAddr
	if *addr != "" {
		listen = *addr
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", bridge.HandleWS)
	httpServer := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("websocket server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("websocket server error", zap.Error(err))
		}
	}()

	browser := wsbrowser.NewClient(bridge, wsbrowser.Options{Timeout: settings.Gather.Timeout})
	audits := auditsvc.New(auditsvc.Options{
		Store:   artifact.NewStore(settings.Gather.SnapshotLimit),
		Logger:  logger,
		Timeout: settings.Gather.Timeout,
	})
	server := mcpserver.New(browser, audits, mcpserver.Options{
		Implementation: &mcp.Implementation{Name: "formaudit", Version: version},
		Instructions:   "Use audit.run to check the checkout forms of the page open in the browser.",
		Logger:         logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		logger.Fatal("mcp server stopped", zap.Error(err))
	}
}
