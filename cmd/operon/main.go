package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pavel/operon/internal/agent"
	"github.com/pavel/operon/internal/gateway"
	"github.com/pavel/operon/internal/llm"
	"github.com/pavel/operon/internal/memory"
	"github.com/pavel/operon/internal/observability"
	"github.com/pavel/operon/internal/tools"
	"github.com/pavel/operon/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	task := flag.String("task", "", "run one task and exit")
	orchestrate := flag.Bool("orchestrate", false, "route tasks through the multi-agent orchestrator")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// One-shot and interactive runs work without a config file.
		cfg = config.Default()
	}

	oneShot := *task != ""
	if !oneShot {
		observability.PrintBanner()
	}

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	logger := observability.NewLogger(cfg.Logging.Dir)

	client, err := llm.NewClient(cfg.Provider)
	if err != nil {
		log.Fatal(err)
	}

	// Initialize Tools
	registry := tools.NewRegistry()

	registry.Register(tools.NewCodeRunnerTool(client, cfg.Sandbox.PythonBin, cfg.SandboxTimeout()))

	searchTool, err := tools.NewWebSearchTool(5)
	if err != nil {
		log.Printf("Warning: Failed to initialize search tool: %v", err)
	} else {
		registry.Register(searchTool)
	}

	registry.Register(tools.NewWebFetchTool())
	registry.Register(tools.NewFilesTool(cfg.App.Workspace))
	registry.Register(tools.NewTextWriterTool(client, cfg.App.Workspace))
	registry.Register(tools.NewSlidesTool(client, cfg.App.Workspace))

	browserTool := tools.NewBrowserTool(cfg.App.Workspace)
	registry.Register(browserTool)
	defer browserTool.Close()

	var mem *memory.Manager
	if cfg.Memory.Enabled {
		embedder, err := client.Embedder()
		if err != nil {
			log.Printf("Warning: memory disabled: %v", err)
		} else if mem, err = memory.NewManager(cfg.Memory.Path, cfg.Memory.Database, embedder.EmbedQuery); err != nil {
			log.Printf("Warning: memory disabled: %v", err)
			mem = nil
		}
	}
	defer mem.Close()

	loop := agent.NewLoop(client, registry, mem, logger, cfg.Engine.MaxPlanSteps, cfg.Engine.MaxRetries)
	orch := agent.NewOrchestrator(client, registry, mem, logger, cfg.Engine.MaxPlanSteps, cfg.Engine.MaxRetries)

	var messengers []gateway.Messenger
	if tgCfg, ok := cfg.GetGateway("telegram"); ok {
		ownerChat := parseChatID(tgCfg.ChatID)
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, ownerChat, loop, orch, mem)
		if err != nil {
			log.Printf("Warning: telegram gateway failed: %v", err)
		} else {
			messengers = append(messengers, tg)
			// The registry is shared, so the loop sees tools registered
			// after its construction.
			registry.Register(tools.NewChatSendTool(tg.Bot, ownerChat))
		}
	}
	if dcCfg, ok := cfg.GetGateway("discord"); ok {
		dc, err := gateway.NewDiscordGateway(dcCfg.Token, dcCfg.ChatID, loop, orch, mem)
		if err != nil {
			log.Printf("Warning: discord gateway failed: %v", err)
		} else {
			messengers = append(messengers, dc)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if oneShot {
		if code := runSingle(ctx, loop, orch, *task, *orchestrate); code != 0 {
			browserTool.Close()
			mem.Close()
			os.Exit(code)
		}
		return
	}

	if len(messengers) > 0 {
		runGateways(ctx, stop, messengers)
		return
	}

	runInteractive(ctx, loop, orch, *orchestrate)
}

func runSingle(ctx context.Context, loop *agent.Loop, orch *agent.Orchestrator, task string, orchestrate bool) int {
	if orchestrate {
		res := orch.Run(ctx, task)
		fmt.Println(res.Output)
		if !res.Success {
			fmt.Fprintln(os.Stderr, "Failed: "+res.Error)
			return 1
		}
		return 0
	}

	res := loop.Run(ctx, task)
	fmt.Println(res.Output)
	if !res.Success {
		fmt.Fprintln(os.Stderr, "Failed: "+res.Error)
		return 1
	}
	return 0
}

func runInteractive(ctx context.Context, loop *agent.Loop, orch *agent.Orchestrator, orchestrate bool) {
	fmt.Println("Interactive mode. Type 'exit' to quit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("Task> ")
		if !scanner.Scan() {
			fmt.Println("\nBye.")
			return
		}
		task := strings.TrimSpace(scanner.Text())
		if task == "" {
			continue
		}
		switch strings.ToLower(task) {
		case "exit", "quit", "q":
			fmt.Println("Bye.")
			return
		}

		if orchestrate {
			res := orch.Run(ctx, task)
			if !res.Success {
				fmt.Println("Failed: " + res.Error)
			} else {
				fmt.Println(res.Output)
			}
		} else {
			res := loop.Run(ctx, task)
			if !res.Success {
				fmt.Println("Failed: " + res.Error)
			} else {
				fmt.Println(res.Output)
			}
		}

		if ctx.Err() != nil {
			return
		}
	}
}

func runGateways(ctx context.Context, stop context.CancelFunc, messengers []gateway.Messenger) {
	observability.InitializeTerminal()

	// Live Resource Dashboard (1-second updates)
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
			}
		}
	}()

	for _, m := range messengers {
		m := m
		go func() {
			if err := m.Start(); err != nil {
				log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
				stop() // stop caller if gateway dies
			}
		}()
	}

	// Wait for shutdown signal
	<-ctx.Done()

	for _, m := range messengers {
		_ = m.Stop()
	}

	// Reset terminal aesthetics
	observability.CleanupTerminal()

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("\033[95m[ EXIT ] CORE DE-INITIALIZED. GOODBYE.\033[0m")
}

func parseChatID(s string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
