// Command console is an interactive REPL over a running state space
// engine, the demo binary's hands-on counterpart to cmd/client: connect
// once, then inspect the registry, watch a pool update live, and simulate
// swaps against whatever the engine has discovered. It has no transaction
// execution, cross-pool routing, or slippage modeling — out of scope per
// spec (cross-pool routing is an explicit non-goal).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethclient "github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/statespace"
	"github.com/defistate/statespace/cmd/client/config"
	"github.com/defistate/statespace/pool"
	ethclientreader "github.com/defistate/statespace/reader/ethclient"
	"github.com/defistate/statespace/streams/jsonrpc/client"
)

const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
)

func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

func main() {
	logFile, err := os.OpenFile("console.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("failed to open log file: %v", err))
	}
	defer logFile.Close()

	rootLogger := slog.New(slog.NewJSONHandler(logFile, nil))
	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check console.log for details." + Reset)
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("failed to load configuration", "error", err)
		closeApp()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factories, err := config.LoadFactoriesYAML(cfg.Factories)
	if err != nil {
		rootLogger.Error("failed to build factory list", "error", err)
		closeApp()
	}

	logSource, err := client.NewClient(ctx, client.Config{
		URL:    cfg.LogSourceURL,
		Logger: rootLogger.With("component", "jsonrpc-client"),
	})
	if err != nil {
		rootLogger.Error("failed to connect log source", "error", err)
		closeApp()
	}

	rpcClient, err := gethclient.Dial(cfg.StateReaderURL)
	if err != nil {
		rootLogger.Error("failed to dial state reader", "error", err)
		closeApp()
	}
	stateReader := ethclientreader.New(rpcClient)

	builder := &statespace.Builder{
		Factories:   factories,
		LogSource:   logSource,
		StateReader: stateReader,
		Logger:      rootLogger,
		Registry:    prometheus.DefaultRegisterer,
	}
	if cfg.Block != 0 {
		block := cfg.Block
		builder.Block = &block
	}

	fmt.Println(Green + "Connecting and running discovery..." + Reset)
	manager, err := builder.Sync(ctx)
	if err != nil {
		rootLogger.Error("failed to start state space engine", "error", err)
		closeApp()
	}

	go drainNotifications(ctx, manager, rootLogger)

	fmt.Println(Green + "Starting console..." + Reset)
	fmt.Println("Logs are being written to 'console.log'")
	runConsole(ctx, manager)
}

// drainNotifications keeps the notification channel from filling while the
// console isn't actively watching a pool; watchPool reads the same channel
// directly while it runs.
func drainNotifications(ctx context.Context, manager *statespace.Manager, logger *slog.Logger) {
	for {
		select {
		case n, ok := <-manager.Subscribe():
			if !ok {
				return
			}
			logger.Debug("state change", "block_number", n.BlockNumber, "pools_changed", len(n.PoolsChanged))
		case <-ctx.Done():
			return
		}
	}
}

func runConsole(ctx context.Context, manager *statespace.Manager) {
	reader := bufio.NewReader(os.Stdin)

	for {
		if ctx.Err() != nil {
			return
		}

		printMenu()
		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("Error reading input:", err)
			continue
		}
		input = strings.TrimSpace(input)

		if input == "q" {
			fmt.Println(Yellow + "Exiting..." + Reset)
			_ = manager.Shutdown()
			os.Exit(0)
		}

		handleCommand(input, manager, reader)

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J")
	fmt.Println(Bold + "STATE SPACE CONSOLE" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Head / Engine Status\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Registry Summary\n", Cyan, Reset)
	fmt.Printf(" %s3.%s Find Pool  %s(by Address)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s4.%s Find Pools %s(by Token Address)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Watch Pool %s(Live Monitor)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s6.%s Simulate Swap\n", Cyan, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func handleCommand(input string, manager *statespace.Manager, reader *bufio.Reader) {
	switch input {
	case "1":
		printHeadInfo(manager)
	case "2":
		printRegistrySummary(manager)
	case "3":
		findPool(manager, reader)
	case "4":
		findPoolsByToken(manager, reader)
	case "5":
		watchPool(manager, reader)
	case "6":
		simulateSwap(manager, reader)
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
}

func printHeadInfo(manager *statespace.Manager) {
	number, hash := manager.Head()
	header("ENGINE STATUS")
	fmt.Printf("%sState:%s             %v\n", Gray, Reset, manager.State())
	fmt.Printf("%sHead Block:%s        #%d\n", Gray, Reset, number)
	fmt.Printf("%sHead Hash:%s         %s\n", Gray, Reset, hash)
	fmt.Printf("%sRegistered Pools:%s  %d\n", Gray, Reset, manager.Registry().Len())
	fmt.Printf("%sDropped Notifs:%s    %d\n", Gray, Reset, manager.DroppedNotifications())
}

func printRegistrySummary(manager *statespace.Manager) {
	header("REGISTRY SUMMARY")
	counts := map[pool.Kind]int{}
	for _, addr := range manager.Registry().All() {
		p, ok := manager.Registry().Get(addr)
		if !ok {
			continue
		}
		counts[p.Kind()]++
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "KIND\tCOUNT\t")
	fmt.Fprintln(w, "----\t-----\t")
	for _, k := range []pool.Kind{pool.KindConstantProduct, pool.KindConcentratedLiquidity, pool.KindERC4626Vault, pool.KindWeighted} {
		fmt.Fprintf(w, "%s\t%d\t\n", k, counts[k])
	}
	w.Flush()
}

func findPool(manager *statespace.Manager, reader *bufio.Reader) {
	fmt.Print("\n" + Bold + "[Find Pool] Enter Pool Address (Hex): " + Reset)
	addr, ok := readAddress(reader)
	if !ok {
		return
	}
	printPool(manager, addr)
}

func findPoolsByToken(manager *statespace.Manager, reader *bufio.Reader) {
	fmt.Print("\n" + Bold + "[Find Pools] Enter Token Address (Hex): " + Reset)
	token, ok := readAddress(reader)
	if !ok {
		return
	}

	addrs := manager.Registry().ByToken(token)
	if len(addrs) == 0 {
		fmt.Println(Yellow + "[INFO] No pools hold this token." + Reset)
		return
	}

	header(fmt.Sprintf("POOLS HOLDING %s", token))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tKIND\tTOKENS\t")
	fmt.Fprintln(w, "-------\t----\t------\t")
	for _, a := range addrs {
		p, ok := manager.Registry().Get(a)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", a, p.Kind(), formatTokens(p.Tokens()))
	}
	w.Flush()
}

func watchPool(manager *statespace.Manager, reader *bufio.Reader) {
	fmt.Print("\n" + Bold + "[Watch Pool] Enter Pool Address (Hex): " + Reset)
	addr, ok := readAddress(reader)
	if !ok {
		return
	}

	fmt.Println(Green + "Starting Live Watch... (Press 'Enter' to stop)" + Reset)
	time.Sleep(500 * time.Millisecond)

	stopCh := make(chan struct{})
	go func() {
		reader.ReadString('\n')
		close(stopCh)
	}()

	notifications := manager.Subscribe()
	printPool(manager, addr)
	for {
		select {
		case <-stopCh:
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			for _, changed := range n.PoolsChanged {
				if changed == addr {
					fmt.Print("\033[H\033[2J")
					fmt.Printf(Bold+"\n--- LIVE MONITOR (Block: #%d) ---\n"+Reset, n.BlockNumber)
					fmt.Println(Gray + "Press ENTER to return to menu." + Reset)
					printPool(manager, addr)
					break
				}
			}
		}
	}
}

func simulateSwap(manager *statespace.Manager, reader *bufio.Reader) {
	header("SIMULATE SWAP")

	fmt.Print(Bold + "1. Enter Pool Address: " + Reset)
	poolAddr, ok := readAddress(reader)
	if !ok {
		return
	}
	p, ok := manager.Registry().Get(poolAddr)
	if !ok {
		fmt.Println(Red + "[NOT FOUND] Pool not in registry." + Reset)
		return
	}

	fmt.Print(Bold + "2. Enter Base Token (input) Address: " + Reset)
	base, ok := readAddress(reader)
	if !ok {
		return
	}

	fmt.Print(Bold + "3. Enter Quote Token (output) Address: " + Reset)
	quote, ok := readAddress(reader)
	if !ok {
		return
	}

	fmt.Print(Bold + "4. Enter Input Amount (raw units): " + Reset)
	amountStr, _ := reader.ReadString('\n')
	amountStr = strings.TrimSpace(amountStr)
	amountIn, ok := new(big.Int).SetString(amountStr, 10)
	if !ok {
		fmt.Println(Red + "Invalid amount." + Reset)
		return
	}

	amountOut, err := p.SimulateSwap(base, quote, amountIn)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}

	fmt.Printf("\n%sEstimated output:%s %s\n", Bold, Reset, amountOut.String())
}

func printPool(manager *statespace.Manager, addr common.Address) {
	p, ok := manager.Registry().Get(addr)
	if !ok {
		fmt.Println(Red + "[NOT FOUND] Pool address not found in registry." + Reset)
		return
	}

	header("POOL DETAILS")
	fmt.Printf("%sAddress:%s  %s\n", Gray, Reset, p.Address())
	fmt.Printf("%sKind:%s     %s\n", Gray, Reset, p.Kind())
	fmt.Printf("%sTokens:%s   %s\n", Gray, Reset, formatTokens(p.Tokens()))

	tokens := p.Tokens()
	if len(tokens) >= 2 {
		price, err := p.Price(tokens[0], tokens[1])
		if err != nil {
			fmt.Printf("%sPrice:%s    %s(%v)%s\n", Gray, Reset, Yellow, err, Reset)
		} else {
			fmt.Printf("%sPrice:%s    1 %s = %f %s\n", Gray, Reset, tokens[0], price, tokens[1])
		}
	}
}

func formatTokens(tokens []common.Address) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func readAddress(reader *bufio.Reader) (common.Address, bool) {
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		fmt.Println(Red + "[ERROR] Invalid address." + Reset)
		return common.Address{}, false
	}
	return common.HexToAddress(input), true
}

func loadConfig() (*config.ClientConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	return config.LoadConfig(*configPath)
}
