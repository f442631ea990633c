// Copyright 2025 The Burrow Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// sessionbench drives the session and cursor pools against a pebble
// engine from concurrent workers and reports the pool counters. It is
// the quickest way to observe cache reuse, high-water behavior and
// shutdown draining on a real engine.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/burrowdb/burrow/go/servenv"
	"github.com/burrowdb/burrow/go/storage/engine/pebbleengine"
	"github.com/burrowdb/burrow/go/storage/sessionpool"
	"github.com/burrowdb/burrow/go/viperutil"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	reg = viperutil.NewRegistry()
	lg  = servenv.NewLogger(reg)

	dataDir = viperutil.Configure(reg, "data-dir", viperutil.Options[string]{
		Default:  "",
		FlagName: "data-dir",
	})
	workers = viperutil.Configure(reg, "workers", viperutil.Options[int]{
		Default:  8,
		FlagName: "workers",
	})
	tables = viperutil.Configure(reg, "tables", viperutil.Options[int]{
		Default:  4,
		FlagName: "tables",
	})
	operations = viperutil.Configure(reg, "operations", viperutil.Options[int]{
		Default:  10000,
		FlagName: "operations",
	})
	cursorCacheFloor = viperutil.Configure(reg, "cursor-cache-floor", viperutil.Options[uint64]{
		Default:  sessionpool.DefaultCursorCacheFloor,
		FlagName: "cursor-cache-floor",
	})
	churnInterval = viperutil.Configure(reg, "churn-interval", viperutil.Options[time.Duration]{
		Default:  0,
		FlagName: "churn-interval",
	})
)

var Main = &cobra.Command{
	Use:   "sessionbench",
	Short: "Exercise the storage session pool against a pebble engine.",
	Long: "Sessionbench opens a pebble engine, creates a set of tables and runs " +
		"concurrent workers through get-session/get-cursor/write/release loops, " +
		"then reports the pool counters.",
	Args: cobra.NoArgs,
	RunE: run,
}

func main() {
	if err := Main.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	fs := Main.Flags()
	fs.String("data-dir", dataDir.Default(), "Directory for the pebble store (empty runs in memory)")
	fs.Int("workers", workers.Default(), "Number of concurrent workers")
	fs.Int("tables", tables.Default(), "Number of tables to spread work across")
	fs.Int("operations", operations.Default(), "Operations per worker")
	fs.Uint64("cursor-cache-floor", cursorCacheFloor.Default(), "Minimum eviction cutoff for per-session cursor caches")
	fs.Duration("churn-interval", churnInterval.Default(), "Interval between pool-wide close-all churns (0 disables)")
	viperutil.BindFlags(fs, dataDir, workers, tables, operations, cursorCacheFloor, churnInterval)

	lg.RegisterFlags(Main.PersistentFlags())
}

func run(cmd *cobra.Command, args []string) error {
	lg.SetupLogging()
	logger := lg.GetLogger()

	opts := &pebble.Options{}
	dir := dataDir.Get()
	if dir == "" {
		opts.FS = vfs.NewMem()
		logger.Info("running on in-memory store")
	}

	eng, err := pebbleengine.Open(dir, opts)
	if err != nil {
		return err
	}
	defer eng.Close()

	numTables := tables.Get()
	tableNames := make([]string, numTables)
	tableIDs := make([]uint64, numTables)
	for i := 0; i < numTables; i++ {
		tableNames[i] = fmt.Sprintf("bench.t%d", i)
		tableIDs[i] = sessionpool.NextCursorID()
		if err := eng.CreateTable(tableNames[i]); err != nil {
			return err
		}
	}

	pool := sessionpool.NewSessionPool(eng, sessionpool.Config{
		CursorCacheFloor: cursorCacheFloor.Get(),
	})

	start := time.Now()
	stop := make(chan struct{})
	churnDone := make(chan struct{})

	if churn := churnInterval.Get(); churn > 0 {
		go func() {
			defer close(churnDone)
			ticker := time.NewTicker(churn)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					pool.CloseAll()
					logger.Debug("pool churned", "epoch", pool.Stats().Epoch)
				}
			}
		}()
	} else {
		close(churnDone)
	}

	var g errgroup.Group
	numWorkers := workers.Get()
	for w := 0; w < numWorkers; w++ {
		w := w
		g.Go(func() error {
			numOperations := operations.Get()
			for i := 0; i < numOperations; i++ {
				t := (w + i) % numTables

				s := pool.GetSession()
				c := s.GetCursor(tableNames[t], tableIDs[t], true)
				if c == nil {
					pool.ReleaseSession(s)
					return fmt.Errorf("table %s disappeared", tableNames[t])
				}

				key := fmt.Appendf(nil, "w%d-%d", w, i)
				if err := c.Set(key, []byte("payload")); err != nil {
					return err
				}
				if err := s.EngineSession().(interface{ Commit() error }).Commit(); err != nil {
					return err
				}

				s.ReleaseCursor(tableIDs[t], c)
				pool.ReleaseSession(s)
			}
			return nil
		})
	}

	benchErr := g.Wait()
	close(stop)
	<-churnDone

	elapsed := time.Since(start)
	stats := pool.Stats()
	logger.Info("bench finished",
		"elapsed", elapsed,
		"ops", workers.Get()*operations.Get(),
		"ops_per_sec", float64(workers.Get()*operations.Get())/elapsed.Seconds(),
		"sessions_cached", stats.SessionsCached,
		"high_water_mark", stats.HighWaterMark,
		"epoch", stats.Epoch,
	)

	pool.ShuttingDown()
	return benchErr
}
