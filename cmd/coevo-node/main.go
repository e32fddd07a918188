// ABOUTME: Entry point for the coevo-node agent core
// ABOUTME: Runs the broker, orchestrator, scheduled loops, and the read-only HTTP surface

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/coevo/coevo-node/internal/bus"
	"github.com/coevo/coevo-node/internal/config"
	"github.com/coevo/coevo-node/internal/httpapi"
	"github.com/coevo/coevo-node/internal/ledger"
	"github.com/coevo/coevo-node/internal/orchestrator"
	"github.com/coevo/coevo-node/internal/persona"
	"github.com/coevo/coevo-node/internal/provider"
	"github.com/coevo/coevo-node/internal/scheduler"
	"github.com/coevo/coevo-node/internal/signer"
	"github.com/coevo/coevo-node/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                                    _
   ___ ___   _____   _____        _ __   ___   __| | ___
  / __/ _ \ / _ \ \ / / _ \ _____| '_ \ / _ \ / _' |/ _ \
 | (_| (_) |  __/\ V / (_) |_____| | | | (_) | (_| |  __/
  \___\___/ \___| \_/ \___/      |_| |_|\___/ \__,_|\___|
`

// getConfigPath returns the path to the node config file.
// Priority: COEVO_CONFIG env var > XDG_CONFIG_HOME/coevo/node.yaml > ~/.config/coevo/node.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COEVO_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "node.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coevo", "node.yaml")
}

// getDataPath returns the path to the coevo data directory.
// Priority: XDG_DATA_HOME/coevo > ~/.local/share/coevo
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coevo")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coevo-node <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve      Start the agent core")
		fmt.Println("  init       Create a new config and persona file interactively")
		fmt.Println("  identity   Print the node's public key and fingerprint")
		fmt.Println("  health     Check node health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "identity":
		err = runIdentity()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

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

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Agents:    %t\n", cfg.Agents.Enabled)
	fmt.Println()

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	sg, err := signer.LoadOrCreate(cfg.Node.KeyPath)
	if err != nil {
		return fmt.Errorf("loading node key: %w", err)
	}
	fingerprint, err := sg.Fingerprint()
	if err != nil {
		return fmt.Errorf("computing node fingerprint: %w", err)
	}

	logger.Info("starting coevo-node",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"fingerprint", fingerprint,
	)

	broker := bus.New(logger)
	defer broker.Close()

	httpServer := httpapi.New(cfg.Server.HTTPAddr, broker, sg, logger)

	errCh := make(chan error, 3)
	go func() {
		errCh <- httpServer.Start()
	}()

	if cfg.Agents.Enabled {
		roster, err := persona.Load(cfg.Agents.PersonaPath)
		if err != nil {
			return fmt.Errorf("loading personas: %w", err)
		}

		ledgerSvc := ledger.New(st, sg, logger)
		if err := seedAgents(ctx, st, ledgerSvc, roster, cfg, logger); err != nil {
			return fmt.Errorf("seeding agents: %w", err)
		}

		registry := provider.NewRegistry(cfg.Providers, logger)
		if len(registry.Providers()) == 0 {
			return fmt.Errorf("agents are enabled but no provider is configured")
		}

		cooldowns, err := newCooldowns(cfg.Agents)
		if err != nil {
			return err
		}

		orch := orchestrator.New(orchestrator.Deps{
			Store:     st,
			Roster:    roster,
			Generator: registry,
			Signer:    sg,
			Broker:    broker,
			Cooldowns: cooldowns,
			Config:    cfg.Agents,
			Logger:    logger,
		})
		go func() {
			errCh <- orch.Run(ctx)
		}()

		sched := scheduler.New(st, roster, registry, orch, cfg, logger)
		go func() {
			errCh <- sched.Run(ctx)
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newCooldowns(cfg config.AgentsConfig) (orchestrator.CooldownStore, error) {
	switch cfg.CooldownBackend {
	case "redis":
		return orchestrator.NewRedisCooldowns(cfg.RedisAddr), nil
	case "memory":
		return orchestrator.NewMemoryCooldowns(), nil
	default:
		return nil, fmt.Errorf("unknown cooldown backend %q", cfg.CooldownBackend)
	}
}

// seedAgents makes sure every roster persona has an agent row and a wallet,
// and that the shared system wallet exists.
func seedAgents(ctx context.Context, st *store.Store, ledgerSvc *ledger.Service, roster *persona.Roster, cfg *config.Config, logger *slog.Logger) error {
	if _, err := ledgerSvc.GetOrCreateSystemWallet(ctx); err != nil {
		return err
	}

	for _, p := range roster.Personas {
		agent, err := st.GetAgentByHandle(ctx, p.Handle)
		if errors.Is(err, store.ErrNotFound) {
			modelRef := p.Model
			if modelRef == "" {
				modelRef = cfg.Agents.DefaultModel
			}
			agent = &store.Agent{
				ID:        uuid.New().String(),
				Handle:    p.Handle,
				Mode:      p.Mode,
				ModelRef:  modelRef,
				Enabled:   p.Enabled,
				CreatedAt: time.Now().UTC(),
			}
			if err := st.CreateAgent(ctx, agent); err != nil {
				return fmt.Errorf("creating agent %q: %w", p.Handle, err)
			}
			logger.Info("seeded agent", "handle", p.Handle, "model", modelRef)
		} else if err != nil {
			return fmt.Errorf("looking up agent %q: %w", p.Handle, err)
		}

		if _, err := ledgerSvc.EnsureWallet(ctx, store.OwnerTypeAgent, agent.ID); err != nil {
			return fmt.Errorf("ensuring wallet for %q: %w", p.Handle, err)
		}
	}
	return nil
}

func runIdentity() error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	sg, err := signer.LoadOrCreate(cfg.Node.KeyPath)
	if err != nil {
		return fmt.Errorf("loading node key: %w", err)
	}

	pemKey, err := sg.PublicKeyPEM()
	if err != nil {
		return err
	}
	fingerprint, err := sg.Fingerprint()
	if err != nil {
		return err
	}

	fmt.Printf("Fingerprint: %s\n\n%s", fingerprint, pemKey)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	// Handler-level attrs first (from WithAttrs), then record attrs
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("coevo-node configuration setup")
	fmt.Println("==============================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "node.db")
	defaultKeyPath := filepath.Join(defaultDataPath, "node_ed25519.pem")
	defaultPersonaPath := filepath.Join(filepath.Dir(defaultConfigPath), "personas.toml")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Storage Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)
	keyPath := prompt(reader, "Node signing key path", defaultKeyPath)

	fmt.Println("\n--- Agent Configuration ---")
	enableAgents := prompt(reader, "Enable agents?", "yes")
	agentsEnabled := strings.ToLower(enableAgents) == "yes" || strings.ToLower(enableAgents) == "y"

	var personaPath, defaultModel string
	if agentsEnabled {
		personaPath = prompt(reader, "Persona file path", defaultPersonaPath)
		defaultModel = prompt(reader, "Default model", "anthropic:claude-3-5-haiku-latest")
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# coevo-node configuration\n")
	cfg.WriteString("# Generated by coevo-node init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("node:\n")
	cfg.WriteString(fmt.Sprintf("  key_path: \"%s\"\n", keyPath))
	cfg.WriteString("\n")

	cfg.WriteString("agents:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", agentsEnabled))
	if agentsEnabled {
		cfg.WriteString(fmt.Sprintf("  persona_path: \"%s\"\n", personaPath))
		cfg.WriteString(fmt.Sprintf("  default_model: \"%s\"\n", defaultModel))
		cfg.WriteString("  reply_cooldown: \"40s\"\n")
		cfg.WriteString("  summon_cooldown: \"20s\"\n")
		cfg.WriteString("  bounty_cooldown: \"20s\"\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("providers:\n")
	cfg.WriteString("  default: \"anthropic\"\n")
	cfg.WriteString("  anthropic:\n")
	cfg.WriteString("    api_key: \"${ANTHROPIC_API_KEY}\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("scheduler:\n")
	cfg.WriteString("  digest_board: \"general\"\n")
	cfg.WriteString("  report_weekday: \"Sunday\"\n")
	cfg.WriteString("  interval: \"24h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	if agentsEnabled {
		if _, err := os.Stat(personaPath); os.IsNotExist(err) {
			if err := os.WriteFile(personaPath, []byte(defaultPersonas), 0644); err != nil {
				return fmt.Errorf("writing persona file: %w", err)
			}
			fmt.Printf("\nPersona file written to %s\n", personaPath)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the node:")
	fmt.Printf("  coevo-node serve\n")

	return nil
}

// defaultPersonas is the starter roster written by init
const defaultPersonas = `# coevo-node persona roster
# Generated by coevo-node init

[[persona]]
handle = "sage"
mode = "peer"
voice = "calm, thoughtful, asks good questions"
enabled = true
reporter = true

[[persona]]
handle = "forge"
mode = "peer"
voice = "pragmatic engineer, fond of concrete examples"
enabled = true
builder = true
code = true
contrarian = true

[[persona]]
handle = "muse"
mode = "explorer"
voice = "playful, lateral thinker"
enabled = true
creative = true
contrarian = true
`

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
