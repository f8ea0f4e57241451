package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/core-tools/hsu-svcmgr-go/pkg/config"
	"github.com/core-tools/hsu-svcmgr-go/pkg/control"
	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
	"github.com/core-tools/hsu-svcmgr-go/pkg/eventloop"
	"github.com/core-tools/hsu-svcmgr-go/pkg/graph"
	"github.com/core-tools/hsu-svcmgr-go/pkg/logging"
	"github.com/core-tools/hsu-svcmgr-go/pkg/notebus"
	"github.com/core-tools/hsu-svcmgr-go/pkg/notify"
	"github.com/core-tools/hsu-svcmgr-go/pkg/processtracker"
	"github.com/core-tools/hsu-svcmgr-go/pkg/restarter"
	"github.com/core-tools/hsu-svcmgr-go/pkg/timerset"
)

type flagOptions struct {
	ConfigPath string `long:"config" description:"path to the supervisor's YAML config file" required:"true"`
	LogLevel   string `long:"log-level" description:"debug|info|warn|error" default:"info"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-server , ", module)
}

func main() {
	var opts flagOptions
	parser := flags.NewParser(&opts, flags.HelpFlag)
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		fmt.Printf("Command line flags parsing failed: %v", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(logPrefix("hsu-svcmgr"), logging.ZapConfig{Level: opts.LogLevel, Format: "console"})
	if err != nil {
		fmt.Printf("Failed to create logger: %v", err)
		os.Exit(1)
	}

	logger.Infof("Starting, config: %s", opts.ConfigPath)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		logger.Errorf("Failed to load config: %v", err)
		os.Exit(1)
	}

	repo := config.BuildRepository(cfg)
	bus := notebus.New()
	timers := timerset.New()
	tracker := processtracker.NewPollTracker(500*time.Millisecond, logger)
	defer tracker.Close()

	notifySocket := cfg.Listen.NotifySocketPath
	receiver, err := notify.Listen(notifySocket, logger)
	if err != nil {
		logger.Errorf("Failed to open notify socket: %v", err)
		os.Exit(1)
	}
	defer receiver.Close()

	core := restarter.NewCore(logger, bus, timers, tracker, notifySocket)
	config.BuildUnits(cfg, core)

	g := graph.New(repo, bus, logger)
	for _, svc := range cfg.Services {
		v := g.InstallService(domain.ServicePath{Service: svc.Name})
		if err := g.VertexSetup(v); err != nil {
			logger.Errorf("Vertex setup failed, path: %s, error: %v", v.Path, err)
		}
	}

	loop := eventloop.New(logger, bus, g, core, timers, tracker, receiver)

	if cfg.Listen.ControlSocket != "" {
		ctl, err := control.Listen(cfg.Listen.ControlSocket, loop, logger)
		if err != nil {
			logger.Errorf("Failed to open control socket: %v", err)
			os.Exit(1)
		}
		defer ctl.Close()
		go ctl.Serve()
	}

	if cfg.Listen.AdminAddr != "" {
		handler := control.NewHandler(g, core)
		server := &http.Server{Addr: cfg.Listen.AdminAddr, Handler: handler}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("Admin HTTP server error: %v", err)
			}
		}()
		defer server.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("Shutdown signal received")
		cancel()
	}()

	logger.Infof("Running")
	loop.Run(ctx)
	logger.Infof("Stopped")
}
