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

package viperutil

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureDefaults(t *testing.T) {
	reg := NewRegistry()

	level := Configure(reg, "log-level", Options[string]{Default: "info"})
	floor := Configure(reg, "cursor-cache-floor", Options[uint64]{Default: 100})
	interval := Configure(reg, "interval", Options[time.Duration]{Default: time.Second})

	assert.Equal(t, "info", level.Get())
	assert.Equal(t, uint64(100), floor.Get())
	assert.Equal(t, time.Second, interval.Get())
}

func TestBindFlags(t *testing.T) {
	reg := NewRegistry()

	level := Configure(reg, "log-level", Options[string]{
		Default:  "info",
		FlagName: "log-level",
	})
	workers := Configure(reg, "workers", Options[int]{
		Default:  4,
		FlagName: "workers",
	})

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("log-level", level.Default(), "")
	fs.Int("workers", workers.Default(), "")
	BindFlags(fs, level, workers)

	require.NoError(t, fs.Parse([]string{"--log-level=debug", "--workers=8"}))

	assert.Equal(t, "debug", level.Get())
	assert.Equal(t, 8, workers.Get())
}

func TestBindFlagsMissingFlagPanics(t *testing.T) {
	reg := NewRegistry()
	val := Configure(reg, "missing", Options[string]{FlagName: "missing"})

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.Panics(t, func() { BindFlags(fs, val) })
}

func TestRegistryIsolation(t *testing.T) {
	a := Configure(NewRegistry(), "key", Options[string]{Default: "a"})
	b := Configure(NewRegistry(), "key", Options[string]{Default: "b"})

	assert.Equal(t, "a", a.Get())
	assert.Equal(t, "b", b.Get())
}
