// ABOUTME: Wires configuration into the running service
// ABOUTME: Builds store, assistant client, resolvers, delivery, orchestrator, frontends and HTTP API

package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/mymmrac/telego"
	"golang.org/x/sync/errgroup"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/2389/filedesk/internal/answer"
	"github.com/2389/filedesk/internal/assistant"
	"github.com/2389/filedesk/internal/config"
	"github.com/2389/filedesk/internal/conversation"
	"github.com/2389/filedesk/internal/dedupe"
	"github.com/2389/filedesk/internal/delivery"
	"github.com/2389/filedesk/internal/files"
	"github.com/2389/filedesk/internal/frontend"
	"github.com/2389/filedesk/internal/logging"
	"github.com/2389/filedesk/internal/server"
	"github.com/2389/filedesk/internal/store"
)

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Sessions:  %s\n", cfg.Session.Backend)
	green.Print("    ▶ ")
	fmt.Printf("Files:     %s\n", cfg.Files.Dir)
	if cfg.Server.HTTPAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	fmt.Println()

	logger.Info("starting filedesk",
		"config", configPath,
		"session_backend", cfg.Session.Backend,
		"http_addr", cfg.Server.HTTPAddr,
	)

	sessions, err := store.Open(ctx, cfg.Session, logger)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer sessions.Close()

	client := assistant.NewClient(assistant.Options{
		BaseURL:     cfg.Assistant.BaseURL,
		APIKey:      cfg.Assistant.APIKey,
		AssistantID: cfg.Assistant.AssistantID,
		APIVersion:  cfg.Assistant.APIVersion,
		Timeout:     cfg.Assistant.RequestTimeout,
		MaxRetries:  cfg.Assistant.MaxRetries,
		Logger:      logger,
	})
	parser := assistant.NewParser(logger)

	resolver := answer.NewResolver(answer.NewAPIFileNames(client, parser), logger)
	locator := files.NewLocator(files.Options{
		Dir:        cfg.Files.Dir,
		SizeLimit:  cfg.Files.SizeLimit(),
		Compressor: files.NewPDFCompressor(cfg.Files.WorkDir, logger),
		Logger:     logger,
	})

	router := delivery.NewRouter(logger)
	events := conversation.NewEventBroadcaster(logger)
	defer events.Close()

	orch := conversation.New(client, sessions, resolver, locator, router, conversation.Options{
		RolloverThreshold: cfg.Conversation.RolloverThreshold,
		PollInterval:      cfg.Conversation.PollInterval,
		PollTimeout:       cfg.Conversation.PollTimeout,
		SearchInstruction: cfg.Conversation.SearchInstruction,
		Events:            events,
		Logger:            logger,
	})

	window := dedupe.NewWindow(dedupe.DefaultTTL, dedupe.DefaultMaxSize)
	defer window.Close()

	bridge := frontend.NewBridge(frontend.Options{
		Turns:  orch,
		Kinds:  sessions,
		Out:    router,
		Events: events,
		Dedupe: window,
		Logger: logger,
	})

	g, ctx := errgroup.WithContext(ctx)

	if tc := cfg.Frontends.Telegram; tc.Enabled {
		bot, err := telego.NewBot(tc.Token)
		if err != nil {
			return fmt.Errorf("creating telegram bot: %w", err)
		}
		router.Register(delivery.FrontendTelegram, delivery.NewTelegram(bot, logger))
		tg := frontend.NewTelegram(bot, bridge, tc.AllowedUsers, logger)
		g.Go(func() error { return tg.Run(ctx) })
	}

	if mc := cfg.Frontends.Matrix; mc.Enabled {
		mx, err := mautrix.NewClient(mc.Homeserver, id.UserID(mc.UserID), mc.AccessToken)
		if err != nil {
			return fmt.Errorf("creating matrix client: %w", err)
		}
		router.Register(delivery.FrontendMatrix, delivery.NewMatrix(mx, logger))
		m := frontend.NewMatrix(mx, bridge, frontend.MatrixOptions{
			UserID:        mc.UserID,
			AllowedRooms:  mc.AllowedRooms,
			CommandPrefix: mc.CommandPrefix,
		}, logger)
		g.Go(func() error { return m.Run(ctx) })
	}

	if cfg.Server.HTTPAddr != "" {
		ledger, _ := sessions.(store.TurnRecorder)
		srv := server.New(cfg.Server.HTTPAddr, orch, sessions, ledger, logger)
		g.Go(func() error { return srv.Run(ctx) })
	}

	err = g.Wait()
	logger.Info("filedesk stopped", "error", err)
	return err
}
