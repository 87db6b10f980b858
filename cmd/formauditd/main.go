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

	"github.com/adityalohuni/formaudit/internal/admin"
	"github.com/adityalohuni/formaudit/internal/artifact"
	"github.com/adityalohuni/formaudit/internal/auditsvc"
	"github.com/adityalohuni/formaudit/internal/browser/wsbrowser"
	"github.com/adityalohuni/formaudit/internal/config"
	"github.com/adityalohuni/formaudit/internal/httpx"
	"github.com/adityalohuni/formaudit/internal/logging"
	"github.com/adityalohuni/formaudit/internal/mcpserver"
	"github.com/adityalohuni/formaudit/internal/metrics"
	"github.com/adityalohuni/formaudit/internal/session"
	"github.com/adityalohuni/formaudit/internal/wsbridge"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

const instructions = "Use audit.run to check the checkout forms of the page open in the browser. " +
	"Pass url to load a page first, or audits to run a subset from audit.list."

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/formaudit/config.toml)")
	flag.Parse()

	settings, err := config.LoadOrCreate(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger := logging.Must(settings.LogLevel, settings.LogFormat)
	defer func() { _ = logger.Sync() }()
	logger.Info("loaded config", zap.String("path", settings.Path))

	m := metrics.New()
	bridge := wsbridge.NewBridge(wsbridge.Options{
		CheckOrigin:       func(r *http.Request) bool { return true },
		Logger:            logger,
		OnSessionsChanged: m.SetBrowserSessions,
	})
	browser := wsbrowser.NewClient(bridge, wsbrowser.Options{Timeout: settings.Gather.Timeout})
	audits := auditsvc.New(auditsvc.Options{
		Store:    artifact.NewStore(settings.Gather.SnapshotLimit),
		Observer: m,
		Logger:   logger,
		Timeout:  settings.Gather.Timeout,
	})

	server := mcpserver.New(browser, audits, mcpserver.Options{
		Implementation: &mcp.Implementation{Name: "formaudit", Version: version},
		Instructions:   instructions,
		Logger:         logger,
	})
	mcpServer := server.MCPServer()

	sseHandler := mcp.NewSSEHandler(func(_ *http.Request) *mcp.Server { return mcpServer }, nil)
	streamHandler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server { return mcpServer }, nil)

	registry := session.NewRegistry()
	adminHandlers := &admin.Handlers{
		StartedAt:    time.Now(),
		Clients:      registry,
		Bridge:       bridge,
		Browser:      browser,
		Audits:       audits,
		Logger:       logger.Named("admin"),
		AuditTimeout: settings.Gather.Timeout,
		MaxIdle:      settings.ClientMaxIdle,
		ConfigPath:   settings.Path,
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp/sse", httpx.RequireToken(settings.MCPToken)(trackSSE(registry, sseHandler)))
	mux.Handle("/mcp/stream", httpx.RequireToken(settings.MCPToken)(trackStreamable(registry, streamHandler)))
	mux.Handle("/metrics", httpx.RequireToken(settings.AdminToken)(m.Handler()))
	adminHandlers.Register(mux, httpx.RequireToken(settings.AdminToken))

	// The websocket upgrade needs the raw ResponseWriter.
	root := http.NewServeMux()
	root.HandleFunc("/ws", bridge.HandleWS)
	root.Handle("/", httpx.LogRequests(logger.Named("http"))(mux))

	httpServer := &http.Server{
		Addr:              settings.DaemonAddr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("daemon listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	logger.Info("daemon stopped")
}
