package attr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ValentinKolb/xkv/cmd/util"
	"github.com/ValentinKolb/xkv/lib/batch"
	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/ValentinKolb/xkv/lib/xattr"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// BatchOptions configures a batch run
type BatchOptions struct {
	Owner      uint64 // first owner, parallel owners count up from it
	Owners     int    // owners written in parallel
	Repeat     int    // batches per owner, run one after the other
	Keys       int    // attributes per batch
	NamePrefix string
	Value      []byte

	Timeout     time.Duration
	MemoryLimit int64
	Rate        float64
	Burst       int
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Writes batches of attributes asynchronously and reports the elapsed time",
	Long: `Writes the attributes <name-prefix>_0 ... <name-prefix>_<keys-1> of an owner with one asynchronous
put per attribute, waits until every put completed and releases the buffers afterwards.

With --owners > 1 the batches of consecutive owners run in parallel, --repeat runs several
batches per owner one after the other.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := util.BindCommandFlags(cmd); err != nil {
			return err
		}

		opts := BatchOptions{
			Owner:       viper.GetUint64("owner"),
			Owners:      viper.GetInt("owners"),
			Repeat:      viper.GetInt("repeat"),
			Keys:        viper.GetInt("keys"),
			NamePrefix:  viper.GetString("name-prefix"),
			Value:       bytes.Repeat([]byte{'*'}, viper.GetInt("value-size")),
			Timeout:     viper.GetDuration("batch-timeout"),
			MemoryLimit: viper.GetInt64("memory-limit-kb") * 1024,
			Rate:        viper.GetFloat64("rate"),
			Burst:       viper.GetInt("burst"),
		}

		async, err := util.NewAsyncStore()
		if err != nil {
			return err
		}
		defer func() {
			if err := async.Close(); err != nil {
				util.Logger.Warningf("failed to close async store: %v", err)
			}
		}()

		timer, err := RunBatches(cmd.Context(), async, opts, cmd.OutOrStdout())
		if timer.Count() > 1 {
			PrintSummary(cmd.OutOrStdout(), timer)
		}
		return err
	},
}

func init() {
	key := "keys"
	batchCmd.Flags().Int(key, 100, util.WrapString("Attributes written per batch"))
	key = "name-prefix"
	batchCmd.Flags().String(key, "1name_of_key", util.WrapString("Prefix of the attribute names, the index of the attribute is appended as _<i>"))
	key = "value-size"
	batchCmd.Flags().Int(key, 512, util.WrapString("Size of every value in bytes"))
	key = "owners"
	batchCmd.Flags().Int(key, 1, util.WrapString("Number of owners written in parallel, starting at --owner"))
	key = "repeat"
	batchCmd.Flags().Int(key, 1, util.WrapString("Batches per owner"))
	key = "batch-timeout"
	batchCmd.Flags().Duration(key, 30*time.Second, util.WrapString("Bound of the wait for the completions of one batch (0 = no bound)"))
	key = "memory-limit-kb"
	batchCmd.Flags().Int64(key, 0, util.WrapString("Bound of the buffer memory held by all running batches in KB (0 = no bound)"))
	key = "rate"
	batchCmd.Flags().Float64(key, 0, util.WrapString("Submissions per second (0 = unlimited)"))
	key = "burst"
	batchCmd.Flags().Int(key, 0, util.WrapString("Burst of the submission rate limit (0 = number of keys)"))
}

// RunBatches runs opts.Repeat batches for each of opts.Owners owners and writes one timing line per batch.
// The returned timer holds the elapsed time of every finished batch.
func RunBatches(ctx context.Context, async store.IAsyncStore, opts BatchOptions, out io.Writer) (gometrics.Timer, error) {
	timer := gometrics.NewTimer()
	if opts.Owners < 1 || opts.Repeat < 1 {
		return timer, fmt.Errorf("owners and repeat must be at least 1 (got %d and %d)", opts.Owners, opts.Repeat)
	}
	if opts.Rate > 0 && opts.Burst <= 0 {
		opts.Burst = opts.Keys
	}

	pool := batch.NewPool(batch.PoolConfig{MemoryLimitBytes: opts.MemoryLimit})
	coordinator := batch.NewCoordinator(
		batch.NewDispatcher(async, batch.DispatcherConfig{SubmitRate: opts.Rate, SubmitBurst: opts.Burst}),
		pool,
		batch.Config{Class: xattr.ClassXattr, Timeout: opts.Timeout},
	)

	var outMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for o := 0; o < opts.Owners; o++ {
		owner := opts.Owner + uint64(o)
		g.Go(func() error {
			for r := 0; r < opts.Repeat; r++ {
				res, err := coordinator.RunBatch(gctx, owner, opts.NamePrefix, opts.Value, opts.Keys)
				if err != nil {
					return fmt.Errorf("owner %d: %w", owner, err)
				}
				timer.Update(res.Elapsed)

				outMu.Lock()
				_, _ = fmt.Fprintf(out, "Elapsed time for stored %d keys one at a time async: %d millisecs\n",
					res.Size, res.Elapsed.Round(time.Millisecond).Milliseconds())
				outMu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()

	// batches that timed out release their buffers once the late completions arrived
	cleanupCtx, cancel := context.WithTimeout(context.Background(), max(opts.Timeout, 10*time.Second))
	defer cancel()
	if cErr := coordinator.WaitCleanup(cleanupCtx); cErr != nil {
		err = errors.Join(err, fmt.Errorf("waiting for the cleanup of timed out batches: %w", cErr))
	}

	stats := pool.Stats()
	util.Logger.Debugf("pool: %d allocations, %d releases, %d outstanding", stats.Allocations, stats.Releases, stats.Outstanding)
	return timer, err
}

// PrintSummary prints the distribution of the batch durations
func PrintSummary(out io.Writer, timer gometrics.Timer) {
	s := timer.Snapshot()
	ps := s.Percentiles([]float64{0.5, 0.99})
	_, _ = fmt.Fprintf(out, "%d batches: min %s, mean %s, p50 %s, p99 %s, max %s\n",
		s.Count(),
		time.Duration(s.Min()),
		time.Duration(s.Mean()).Round(time.Microsecond),
		time.Duration(ps[0]).Round(time.Microsecond),
		time.Duration(ps[1]).Round(time.Microsecond),
		time.Duration(s.Max()),
	)
}
