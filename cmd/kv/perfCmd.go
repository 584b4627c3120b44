package kv

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/xkv/cmd/util"
	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/ValentinKolb/xkv/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for xkv stores",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             []string
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per cpu used for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// benchmark is one entry of the perf run
type benchmark struct {
	name string
	// seed sets all keys before the timer starts
	seed bool
	// op runs one operation on the i-th call of a goroutine
	op func(key []byte, i int) error
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for xkv stores")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	largeValue := make([]byte, perfLargeValueSizeKB*1024)
	value := []byte("test")

	benchmarks := []benchmark{
		{name: "set", op: func(key []byte, _ int) error { return kvStore.Set(key, value) }},
		{name: "set-large", op: func(key []byte, _ int) error { return kvStore.Set(key, largeValue) }},
		{name: "get", seed: true, op: func(key []byte, _ int) error {
			_, _, err := kvStore.Get(key)
			return err
		}},
		{name: "delete", seed: true, op: func(key []byte, _ int) error { return kvStore.Delete(key) }},
		{name: "has", seed: true, op: func(key []byte, _ int) error {
			_, err := kvStore.Has(key)
			return err
		}},
		{name: "scan", seed: true, op: func(_ []byte, _ int) error {
			_, err := kvStore.Scan([]byte(perfKeyPrefix + "-scan-"))
			return err
		}},
		{name: "mixed", seed: true, op: func(key []byte, i int) error {
			var err error
			switch i % 4 {
			case 0:
				err = kvStore.Set(key, value)
			case 1:
				_, _, err = kvStore.Get(key)
			case 2:
				err = kvStore.Delete(key)
			case 3:
				_, err = kvStore.Has(key)
			}
			return err
		}},
	}

	results := make(map[string]testing.BenchmarkResult)
	for _, bm := range benchmarks {
		result := runBenchmark(bm, value)
		results[bm.name] = result
		printResult(bm.name, result)
	}

	result := runAsyncSetBenchmark(value)
	results["async-set"] = result
	printResult("async-set", result)

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %w", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func runBenchmark(bm benchmark, value []byte) testing.BenchmarkResult {
	if shouldSkip(bm.name) {
		return testing.BenchmarkResult{}
	}

	return testing.Benchmark(func(b *testing.B) {
		keys := getKeys(bm.name)
		if bm.seed {
			for _, k := range keys {
				if err := kvStore.Set(k, value); err != nil {
					util.Logger.Warningf("(%s) - error setting key: %v", bm.name, err)
				}
			}
		}

		b.Cleanup(func() {
			for _, k := range keys {
				if err := kvStore.Delete(k); err != nil {
					util.Logger.Warningf("(%s) - error deleting key: %v", bm.name, err)
				}
			}
		})

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			i := 0
			for pb.Next() {
				if err := bm.op(keys[i%len(keys)], i); err != nil {
					util.Logger.Warningf("(%s) - error performing operation: %v", bm.name, err)
				}
				i++
			}
		})
	})
}

// runAsyncSetBenchmark submits b.N puts through the async store and waits for all completions
func runAsyncSetBenchmark(value []byte) testing.BenchmarkResult {
	if shouldSkip("async-set") {
		return testing.BenchmarkResult{}
	}

	async, err := util.NewAsyncStore()
	if err != nil {
		util.Logger.Errorf("(async-set) - failed to create async store: %v", err)
		return testing.BenchmarkResult{}
	}
	defer func() {
		if err := async.Close(); err != nil {
			util.Logger.Warningf("(async-set) - error closing async store: %v", err)
		}
	}()

	return testing.Benchmark(func(b *testing.B) {
		keys := getKeys("async-set")
		b.Cleanup(func() {
			for _, k := range keys {
				_ = kvStore.Delete(k)
			}
		})

		done := make(chan store.Handle, b.N)
		b.ResetTimer()
		submitted := 0
		for i := 0; i < b.N; i++ {
			_, err := async.Submit(store.OpPut, keys[i%len(keys)], value, func(h store.Handle, r store.Result) {
				if !r.Ok() {
					util.Logger.Warningf("(async-set) - request failed: %v", r.Err)
				}
				done <- h
			})
			if err != nil {
				util.Logger.Warningf("(async-set) - error submitting: %v", err)
				continue
			}
			submitted++
		}
		for ; submitted > 0; submitted-- {
			if err := async.Finalize(<-done); err != nil {
				util.Logger.Warningf("(async-set) - error finalizing: %v", err)
			}
		}
	})
}

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// getKeys creates the test keys of one benchmark
func getKeys(prefix string) [][]byte {
	keys := make([][]byte, perfKeySpread)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i))
	}
	return keys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1)
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"ShardID", "Serializer", "Transport", "Local",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, test := range names {
		result := results[test]
		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.FormatBool(viper.GetBool("local")),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %w", test, err)
		}
	}

	return nil
}
