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

package servenv

import (
	"context"
	"log/slog"
	"testing"

	"github.com/burrowdb/burrow/go/viperutil"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerDefaults(t *testing.T) {
	reg := viperutil.NewRegistry()
	lg := NewLogger(reg)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	lg.RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))

	lg.SetupLogging()
	assert.NotNil(t, lg.GetLogger())
}

func TestLoggerFlagOverride(t *testing.T) {
	reg := viperutil.NewRegistry()
	lg := NewLogger(reg)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	lg.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level=debug", "--log-format=text"}))

	lg.SetupLogging()
	logger := lg.GetLogger()
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug), "debug level should be enabled")
}
