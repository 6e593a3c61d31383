package item

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dInv/cmd/util"
	"github.com/ValentinKolb/dInv/lib/store"
	"github.com/ValentinKolb/dInv/rpc/client"
	"github.com/ValentinKolb/dInv/rpc/common"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for inventory servers",
		Long:    "Runs every benchmark with one session per thread. Items created by a benchmark are deleted afterward.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfItemPrefix  = "__perf"
	perfNumThreads  = 4
	perfRequests    = 1000
	perfItemSpread  = 100
	perfSkip        = make([]string, 0)
	perfPercentiles = []float64{0.5, 0.95, 0.99}
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get-all)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 4, util.WrapString("Number of concurrent sessions. Must not exceed the session limit of the server"))
	key = "requests"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Number of requests every session sends per benchmark"))
	key = "items"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different items to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfRequests = max(viper.GetInt("requests"), 1)
	perfItemSpread = max(viper.GetInt("items"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// benchmark is a single perf test. op is called by every session with a
// running counter and the ids prepared for the test.
type benchmark struct {
	name    string
	prepare bool
	op      func(c client.IInventoryClient, i int, ids []int64) error
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for inventory servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Requests per thread: %d\n", perfRequests)
	fmt.Println()

	sessions, err := openSessions(perfNumThreads)
	defer func() {
		for _, s := range sessions {
			_ = s.Close()
		}
	}()
	if err != nil {
		return err
	}

	fmt.Println("starting tests...")

	benchmarks := []benchmark{
		{name: "put", op: func(c client.IInventoryClient, i int, _ []int64) error {
			_, err := c.Put(perfItem(i))
			return err
		}},
		{name: "get", prepare: true, op: func(c client.IInventoryClient, i int, ids []int64) error {
			_, err := c.Get(ids[i%len(ids)])
			return err
		}},
		{name: "get-all", prepare: true, op: func(c client.IInventoryClient, _ int, _ []int64) error {
			_, err := c.GetAll()
			return err
		}},
		{name: "mod", prepare: true, op: func(c client.IInventoryClient, i int, ids []int64) error {
			item := perfItem(i)
			item.ID = ids[i%len(ids)]
			return c.Mod(item)
		}},
		{name: "mixed", prepare: true, op: func(c client.IInventoryClient, i int, ids []int64) error {
			var err error
			id := ids[i%len(ids)]
			switch i % 4 {
			case 0: // put
				_, err = c.Put(perfItem(i))
			case 1: // get
				_, err = c.Get(id)
			case 2: // mod
				item := perfItem(i)
				item.ID = id
				err = c.Mod(item)
			case 3: // get all
				_, err = c.GetAll()
			}
			return err
		}},
	}

	registry := metrics.NewRegistry()
	for _, bench := range benchmarks {
		if shouldSkip(bench.name) {
			fmt.Printf("%-20sskipped\n", bench.name)
			continue
		}
		timer := metrics.GetOrRegisterTimer(bench.name, registry)
		if err := runBenchmark(sessions, bench, timer); err != nil {
			return err
		}
		printResult(bench.name, timer)
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, registry, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// runBenchmark runs bench on every session at once and records the latency of every request
func runBenchmark(sessions []client.IInventoryClient, bench benchmark, timer metrics.Timer) error {
	ids := make([]int64, 0, perfItemSpread)
	if bench.prepare {
		for i := 0; i < perfItemSpread; i++ {
			id, err := sessions[0].Put(perfItem(i))
			if err != nil {
				return fmt.Errorf("(%s) - error preparing items: %w", bench.name, err)
			}
			ids = append(ids, id)
		}
	}

	start := time.Now()
	var failed atomic.Int64
	var g errgroup.Group
	for _, session := range sessions {
		session := session
		g.Go(func() error {
			for i := 0; i < perfRequests; i++ {
				begin := time.Now()
				err := bench.op(session, i, ids)
				timer.UpdateSince(begin)
				if err != nil {
					// a busy or shut down server ends the session
					if !errors.Is(err, client.ErrFailure) {
						return fmt.Errorf("(%s) - %w", bench.name, err)
					}
					failed.Add(1)
				}
			}
			return nil
		})
	}
	err := g.Wait()
	elapsed := time.Since(start)

	if n := failed.Load(); n > 0 {
		log.Printf("(%s) - %d requests failed\n", bench.name, n)
	}
	cleanup(sessions[0], bench.name)
	fmt.Printf("%-20sfinished in %s\n", bench.name, elapsed.Round(time.Millisecond))
	return err
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// openSessions opens n logged in sessions. Sessions opened before an error are returned as well.
func openSessions(n int) ([]client.IInventoryClient, error) {
	config := *util.GetClientConfig()
	sessions := make([]client.IInventoryClient, 0, n)
	for i := 0; i < n; i++ {
		session, err := client.NewInventoryClient(context.Background(), config)
		if err != nil {
			return sessions, fmt.Errorf("failed to open session %d: %w", i+1, err)
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// perfItem returns the i-th test item
func perfItem(i int) store.Item {
	return store.Item{
		Name:        fmt.Sprintf("%s-%d", perfItemPrefix, i%perfItemSpread),
		Armor:       i % 50,
		Health:      i % 100,
		SellPrice:   i,
		Damage:      i % 30,
		CritChance:  0.05,
		Range:       1,
		Description: "created by the perf tool",
	}
}

// cleanup deletes every item created by the perf tool
func cleanup(session client.IInventoryClient, test string) {
	items, err := session.GetAll()
	if err != nil {
		log.Printf("(%s) - error listing items: %v\n", test, err)
		return
	}
	for _, item := range items {
		if !strings.HasPrefix(item.Name, perfItemPrefix+"-") {
			continue
		}
		if err := session.Del(item.ID); err != nil {
			log.Printf("(%s) - error deleting item %d: %v\n", test, item.ID, err)
		}
	}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, timer metrics.Timer) {
	snapshot := timer.Snapshot()
	if snapshot.Count() == 0 {
		fmt.Printf("%-20sno requests\n", test)
		return
	}

	ps := snapshot.Percentiles(perfPercentiles)
	fmt.Printf("%-20s%d requests\tmean %s\tp50 %s\tp95 %s\tp99 %s\t%.0f ops/sec\n",
		test, snapshot.Count(), time.Duration(snapshot.Mean()),
		time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]), snapshot.RateMean())
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, registry metrics.Registry, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "Requests", "MeanNs", "P50Ns", "P95Ns", "P99Ns", "OpsPerSec",
		"Endpoint", "TimeoutSec", "Threads", "RequestsPerThread", "Items",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	var rowErr error
	registry.Each(func(test string, metric interface{}) {
		timer, ok := metric.(metrics.Timer)
		if !ok || rowErr != nil {
			return
		}
		snapshot := timer.Snapshot()
		ps := snapshot.Percentiles(perfPercentiles)

		row := []string{
			test,
			strconv.FormatInt(snapshot.Count(), 10),
			fmt.Sprintf("%.0f", snapshot.Mean()),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			fmt.Sprintf("%.0f", snapshot.RateMean()),
			config.Endpoint,
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfRequests),
			strconv.Itoa(perfItemSpread),
		}

		if err := writer.Write(row); err != nil {
			rowErr = fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	})

	return rowErr
}
