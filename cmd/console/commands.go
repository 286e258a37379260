package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/amm/router"
	"github.com/defistate/defistate-amm-go/protocols/assetregistry"
)

// --- COMMAND HANDLERS ---

func printHelp() {
	fmt.Print("\033[H\033[2J")

	header("AMM STATE STREAM")
	fmt.Println(Bold + "Concept: Operation-Synchronized Snapshots" + Reset)
	fmt.Println("The exchange publishes one full state, then a diff after every committed")
	fmt.Println("operation. This console patches each diff locally and quotes from the result.")
	fmt.Println("")

	fmt.Println(Bold + "1. THE DATA STRUCTURE" + Reset)
	fmt.Println("   The root object is " + Cyan + "State" + Reset + ", which contains:")
	fmt.Println("   - " + Yellow + "Checkpoint" + Reset + ": Sequence and name of the last committed operation.")
	fmt.Println("   - " + Yellow + "Protocols" + Reset + ": A map of Protocol IDs to their specific view.")
	fmt.Println("")

	fmt.Println(Bold + "2. THE VIEWS" + Reset)
	fmt.Printf("   A. %sPools%s (amm)\n", Cyan, Reset)
	fmt.Println("      - Reserves, decimals and liquidity of every volatile and stable pool.")
	fmt.Printf("   B. %sAssets%s (assets)\n", Cyan, Reset)
	fmt.Println("      - Symbol, name and decimals, LP assets included.")
	fmt.Printf("   C. %sAsset-Pool Graph%s (graph)\n", Cyan, Reset)
	fmt.Println("      - Answers: 'What pools hold this asset?' or 'How do I route A -> C?'")
	fmt.Println("")

	fmt.Println(Gray + "---------------------------------------------------------------" + Reset)
	fmt.Println(Bold + "INPUT FORMATS" + Reset)
	fmt.Println("Assets:  a symbol (case-insensitive) or a 0x-prefixed asset id.")
	fmt.Println("Pools:   two assets and an optional 'stable', e.g. " + Green + "WETH USDC" + Reset + " or " + Green + "USDC USDT stable" + Reset + ".")
	fmt.Println("Amounts: decimal units of the asset, e.g. " + Green + "1.5" + Reset + ".")
	fmt.Println(Gray + "---------------------------------------------------------------" + Reset)
}

func printCheckpoint(v *view) {
	cp := v.state.Checkpoint
	ts := time.Unix(0, cp.CommittedAt).Format("15:04:05")
	op := cp.Operation
	if op == "" {
		op = "-"
	}

	fmt.Printf("\n%sSTATUS  ::%s Sequence %s#%d%s | Operation %s%s%s | Committed %s%s%s\n",
		Green, Reset,
		Bold, cp.Sequence, Reset,
		Bold, op, Reset,
		Bold, ts, Reset,
	)
}

func printProtocolSummary(v *view) {
	header("PROTOCOL SUMMARY")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "PROTOCOL ID\tSCHEMA\tSTATUS\t")
	fmt.Fprintln(w, "-----------\t------\t------\t")

	errCount := 0
	for id, p := range v.state.Protocols {
		status := Green + "OK" + Reset
		if p.Error != "" {
			status = Red + "ERROR" + Reset
			errCount++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", id, p.Schema, status)
	}
	w.Flush()

	fmt.Printf("\n%sPools: %d | Assets: %d | Protocols with Errors: %d%s\n", Bold, len(v.pools), len(v.assets), errCount, Reset)
}

func printPools(v *view) {
	header("POOLS")
	if len(v.pools) == 0 {
		fmt.Println(Yellow + "No pools yet." + Reset)
		return
	}
	printPoolTable(v, v.pools)
}

func printPoolTable(v *view, pools []amm.Pool) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "PAIR\tCURVE\tRESERVE 0\tRESERVE 1\tLIQUIDITY\t")
	for _, p := range pools {
		fmt.Fprintf(w, "%s/%s\t%s\t%s\t%s\t%d\t\n",
			v.symbol(p.ID.Asset0), v.symbol(p.ID.Asset1),
			curveName(p.ID.Stable),
			formatAmount(p.Reserve0, p.Decimals0),
			formatAmount(p.Reserve1, p.Decimals1),
			p.Liquidity,
		)
	}
	w.Flush()
}

func (c *console) readLine(prompt string) string {
	fmt.Print(Bold + prompt + Reset)
	input, _ := c.reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func (c *console) readAsset(v *view, prompt string) (assetregistry.Asset, bool) {
	a, err := v.lookupAsset(c.readLine(prompt))
	if err != nil {
		fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
		return assetregistry.Asset{}, false
	}
	return a, true
}

func (c *console) readAmount(prompt string, decimals uint8) (uint64, bool) {
	amount, err := parseAmount(c.readLine(prompt), decimals)
	if err != nil {
		fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
		return 0, false
	}
	if amount == 0 {
		fmt.Println(Red + "[ERROR] amount must be greater than zero" + Reset)
		return 0, false
	}
	return amount, true
}

func (c *console) findPoolsByAsset(v *view) {
	asset, ok := c.readAsset(v, "\n[Find Pools] Enter Asset (symbol or id): ")
	if !ok {
		return
	}

	header("ASSET DETAILS")
	fmt.Printf(" %s%-10s%s %s\n", Gray, "Symbol:", Reset, asset.Symbol)
	fmt.Printf(" %s%-10s%s %s\n", Gray, "Name:", Reset, asset.Name)
	fmt.Printf(" %s%-10s%s %d\n", Gray, "Decimals:", Reset, asset.Decimals)
	fmt.Printf(" %s%-10s%s %s\n", Gray, "ID:", Reset, asset.ID.Hex())
	fmt.Printf(" %s%-10s%s %s\n", Gray, "Contract:", Reset, asset.Contract.Hex())

	ids := v.graph.PoolsForAsset(asset.ID)
	if len(ids) == 0 {
		fmt.Println("\n" + Yellow + "[INFO] No pools hold this asset." + Reset)
		return
	}
	pools := make([]amm.Pool, 0, len(ids))
	for _, id := range ids {
		if p, ok := v.source.GetByID(id); ok {
			pools = append(pools, p)
		}
	}
	header(fmt.Sprintf("%d POOLS", len(pools)))
	printPoolTable(v, pools)
}

func (c *console) watchPool(v *view) {
	pool, err := v.lookupPool(c.readLine("\n[Watch Pool] Enter Pool (e.g. 'A B' or 'A B stable'): "))
	if err != nil {
		fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
		return
	}
	id := pool.ID

	fmt.Println(Green + "Starting Live Watch... (Press 'Enter' to stop)" + Reset)
	time.Sleep(1 * time.Second)

	stopCh := make(chan struct{})
	go func() {
		c.reader.ReadString('\n')
		close(stopCh)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastSequence uint64
	first := true

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s := c.safeState.Get()
			if s == nil || (!first && s.Checkpoint.Sequence <= lastSequence) {
				continue
			}
			first = false
			lastSequence = s.Checkpoint.Sequence

			current, err := newView(s)
			if err != nil {
				continue
			}
			fmt.Print("\033[H\033[2J")
			fmt.Printf(Bold+"\n--- LIVE MONITOR (Sequence: %d, %s) ---\n"+Reset, s.Checkpoint.Sequence, s.Checkpoint.Operation)
			fmt.Println(Gray + "Press ENTER to return to menu." + Reset)

			p, ok := current.source.GetByID(id)
			if !ok {
				fmt.Println(Yellow + "[WARN] Pool missing from this state." + Reset)
				continue
			}
			printPoolTable(current, []amm.Pool{p})
			if rate, err := c.router.CurrentRate(current.source, id.Asset1, []amm.PoolID{id}); err == nil {
				fmt.Printf("\n%sRate:%s 1 %s = %s %s\n", Bold, Reset,
					current.symbol(id.Asset1), formatRate(rate), current.symbol(id.Asset0))
			}
		}
	}
}

func (c *console) routeExactInput(v *view) {
	header("ROUTE FINDER (EXACT INPUT)")

	assetIn, ok := c.readAsset(v, "1. Enter Input Asset: ")
	if !ok {
		return
	}
	assetOut, ok := c.readAsset(v, "2. Enter Output Asset: ")
	if !ok {
		return
	}
	amountIn, ok := c.readAmount("3. Enter Input Amount (e.g. 1.5): ", assetIn.Decimals)
	if !ok {
		return
	}

	fmt.Printf("\nRouting %s %s within %d hops...\n", formatAmount(amountIn, assetIn.Decimals), assetIn.Symbol, c.maxHops)

	quote, err := c.router.BestExactInput(context.Background(), v.source, v.graph, assetIn.ID, amountIn, assetOut.ID, c.maxHops)
	if err != nil {
		fmt.Printf(Red+"[ERROR] Pathfinding failed: %v%s\n", err, Reset)
		return
	}
	out := quote.Out()
	header("BEST ROUTE FOUND")
	fmt.Printf("%sEst. Output:%s %s %s (Raw: %d)\n\n", Bold, Reset, formatAmount(out.Amount, v.decimals(out.Asset)), assetOut.Symbol, out.Amount)
	printRoute(v, quote.Route, quote.Amounts)
}

func (c *console) routeExactOutput(v *view) {
	header("ROUTE FINDER (EXACT OUTPUT)")

	assetIn, ok := c.readAsset(v, "1. Enter Input Asset: ")
	if !ok {
		return
	}
	assetOut, ok := c.readAsset(v, "2. Enter Output Asset: ")
	if !ok {
		return
	}
	amountOut, ok := c.readAmount("3. Enter Output Amount (e.g. 1.5): ", assetOut.Decimals)
	if !ok {
		return
	}

	routes := router.FindRoutes(v.graph, assetIn.ID, assetOut.ID, c.maxHops)
	if len(routes) == 0 {
		fmt.Println(Yellow + "No route found." + Reset)
		return
	}

	// Price each route on its own so one dry pool does not hide the others.
	best := -1
	var bestIn uint64
	for i, route := range routes {
		in, err := c.router.PreviewSwapExactOutput(v.source, assetOut.ID, amountOut, route)
		if err != nil {
			continue
		}
		if best < 0 || in.Amount < bestIn {
			best, bestIn = i, in.Amount
		}
	}
	if best < 0 {
		fmt.Printf(Red+"[ERROR] None of %d routes can deliver that amount.%s\n", len(routes), Reset)
		return
	}

	trace, err := c.router.GetAmountsIn(v.source, assetOut.ID, amountOut, routes[best])
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	// GetAmountsIn lists the output first.
	for i, j := 0, len(trace)-1; i < j; i, j = i+1, j-1 {
		trace[i], trace[j] = trace[j], trace[i]
	}

	header("CHEAPEST ROUTE FOUND")
	fmt.Printf("%sEst. Input:%s %s %s (Raw: %d)\n\n", Bold, Reset, formatAmount(bestIn, assetIn.Decimals), assetIn.Symbol, bestIn)
	printRoute(v, routes[best], trace)
}

func (c *console) liquidityPosition(v *view) {
	pool, err := v.lookupPool(c.readLine("\n[Liquidity] Enter Pool (e.g. 'A B' or 'A B stable'): "))
	if err != nil {
		fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
		return
	}
	lpDecimals := v.decimals(pool.LPAsset)
	amount, ok := c.readAmount("Enter LP amount: ", lpDecimals)
	if !ok {
		return
	}

	a0, a1, err := router.GetLiquidityPosition(v.source, pool.ID, amount)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}

	header("LIQUIDITY POSITION")
	fmt.Printf(" %s%-10s%s %s of %s\n", Gray, "Share:", Reset, formatAmount(amount, lpDecimals), formatAmount(pool.Liquidity, lpDecimals))
	fmt.Printf(" %s%-10s%s %s %s\n", Gray, "Asset 0:", Reset, formatAmount(a0.Amount, pool.Decimals0), v.symbol(a0.Asset))
	fmt.Printf(" %s%-10s%s %s %s\n", Gray, "Asset 1:", Reset, formatAmount(a1.Amount, pool.Decimals1), v.symbol(a1.Asset))

	if other, err := router.GetOtherAssetToAddLiquidity(v.source, pool.ID, a0.Asset, a0.Amount); err == nil {
		fmt.Printf("\n%sTo add the same again:%s %s %s with %s %s\n", Bold, Reset,
			formatAmount(a0.Amount, pool.Decimals0), v.symbol(a0.Asset),
			formatAmount(other.Amount, pool.Decimals1), v.symbol(other.Asset))
	}
}

// printRoute draws each hop of a route from its input-first trace.
func printRoute(v *view, route []amm.PoolID, trace []router.AssetAmount) {
	fmt.Println(Bold + "Route Path:" + Reset)
	for i, id := range route {
		in, out := trace[i], trace[i+1]

		// Step N: [ Symbol In ]
		//            |
		//            +---[ Pool ]---> [ Symbol Out ]
		fmt.Printf(" [ Step %d ]\n", i+1)
		fmt.Printf("  %s%-6s%s %s\n", Cyan, v.symbol(in.Asset), Reset, formatAmount(in.Amount, v.decimals(in.Asset)))
		fmt.Printf("    %s|%s\n", Gray, Reset)
		fmt.Printf("    %s+---[%s%s/%s %s%s]--->%s  %s%-6s%s %s\n",
			Gray, Reset,
			v.symbol(id.Asset0), v.symbol(id.Asset1), curveName(id.Stable),
			Gray, Reset,
			Cyan, v.symbol(out.Asset), Reset,
			formatAmount(out.Amount, v.decimals(out.Asset)))
		fmt.Println("")
	}
}
