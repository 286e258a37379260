package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/defistate/defistate-amm-go/cmd/client/config"
	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/amm/router"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/client"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// SafeState is a thread-safe container for the latest reconstructed state.
type SafeState struct {
	mu    sync.RWMutex
	state *state.State
}

func (s *SafeState) Update(newState *state.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newState
}

func (s *SafeState) Get() *state.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// console holds what every command needs besides the state itself.
type console struct {
	safeState *SafeState
	router    *router.Router
	maxHops   int
	reader    *bufio.Reader
}

func main() {
	// --- 1. SETUP LOGGING (To File) ---
	logFile := &lumberjack.Logger{
		Filename:   "console.log",
		MaxSize:    10, // megabytes
		MaxBackups: 2,
	}
	defer logFile.Close()

	rootLogger := slog.New(slog.NewJSONHandler(logFile, nil))

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check console.log for details." + Reset)
		os.Exit(1)
	}

	// --- 2. CONFIG & CONTEXT ---
	prometheusRegistry := prometheus.NewRegistry()
	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		closeApp()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 3. FEES & ROUTER ---
	// The stream carries pool state only; the fee schedule is process-wide and fetched once.
	fees, err := fetchFees(ctx, cfg.StateStreamURL)
	if err != nil {
		rootLogger.Error("Failed to fetch fee schedule", "url", cfg.StateStreamURL, "error", err)
		closeApp()
	}
	r, err := router.New(fees)
	if err != nil {
		rootLogger.Error("Failed to initialize Router", "error", err)
		closeApp()
	}

	// --- 4. INITIALIZE OPS & CLIENT ---
	ops, err := stateops.NewStateOps(rootLogger, prometheusRegistry)
	if err != nil {
		rootLogger.Error("Failed to initialize State Ops", "error", err)
		closeApp()
	}

	client, err := client.NewClient(
		ctx,
		client.Config{
			URL:              cfg.StateStreamURL,
			Logger:           rootLogger.With("component", "jsonrpc-client"),
			BufferSize:       cfg.BufferSize,
			StatePatcher:     ops.Patch,
			StateDecoder:     ops.DecodeStateJSON,
			StateDiffDecoder: ops.DecodeStateDiffJSON,
		},
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "url", cfg.StateStreamURL, "error", err)
		closeApp()
	}

	// --- 5. START CONSOLE & STATE LOOP ---
	c := &console{
		safeState: &SafeState{},
		router:    r,
		maxHops:   cfg.MaxHops,
		reader:    bufio.NewReader(os.Stdin),
	}

	fmt.Println(Green + "Starting AMM Console..." + Reset)
	fmt.Println("Logs are being written to 'console.log'")
	go c.run(ctx)

	for {
		select {
		case n := <-client.State():
			c.safeState.Update(n)

		case err := <-client.Err():
			rootLogger.Error("Fatal client error", "error", err)
			closeApp()

		case <-ctx.Done():
			fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
			return
		}
	}
}

func fetchFees(ctx context.Context, url string) (amm.Fees, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return amm.Fees{}, err
	}
	defer rpcClient.Close()

	var fees amm.Fees
	err = rpcClient.CallContext(ctx, &fees, client.RpcNamespace+"_fees")
	return fees, err
}

// run handles user input and display.
func (c *console) run(ctx context.Context) {
	time.Sleep(500 * time.Millisecond)

	for {
		if ctx.Err() != nil {
			return
		}

		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := c.reader.ReadString('\n')
		if err != nil {
			fmt.Println("Error reading input:", err)
			continue
		}

		c.handleCommand(strings.TrimSpace(input))

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		c.reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "AMM CONSOLE" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Checkpoint Info\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Protocol Summary\n", Cyan, Reset)
	fmt.Printf(" %s3.%s List Pools\n", Cyan, Reset)
	fmt.Printf(" %s4.%s Find Pools %s(by Asset)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Watch Pool %s(Live Monitor)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s6.%s Route      %s(Exact Input)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s7.%s Route      %s(Exact Output)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s8.%s Liquidity Position\n", Cyan, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sh.%s Help\n", Yellow, Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func (c *console) handleCommand(input string) {
	s := c.safeState.Get()

	// Allow help and quit even if state isn't ready
	if s == nil && input != "q" && input != "h" {
		fmt.Println("\n" + Yellow + "[INFO] Waiting for first state update... (Check connection/logs)" + Reset)
		return
	}

	if input == "h" {
		printHelp()
		return
	}
	if input == "q" {
		exitConsole()
	}

	v, err := newView(s)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}

	switch input {
	case "1":
		printCheckpoint(v)
	case "2":
		printProtocolSummary(v)
	case "3":
		printPools(v)
	case "4":
		c.findPoolsByAsset(v)
	case "5":
		c.watchPool(v)
	case "6":
		c.routeExactInput(v)
	case "7":
		c.routeExactOutput(v)
	case "8":
		c.liquidityPosition(v)
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
}

func exitConsole() {
	fmt.Println(Yellow + "Exiting..." + Reset)
	os.Exit(0)
}

func loadConfig() (*config.ClientConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
