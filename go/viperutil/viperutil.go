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

// Package viperutil wires typed configuration values to viper. Each
// service or command owns an isolated Registry; values are declared
// with Configure and optionally bound to pflag flags and environment
// variables.
package viperutil

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Registry holds an isolated viper instance. Using one registry per
// command keeps configuration state out of package globals.
type Registry struct {
	v *viper.Viper
}

// NewRegistry creates a new isolated configuration registry.
func NewRegistry() *Registry {
	return &Registry{v: viper.New()}
}

// Viper exposes the underlying viper instance, for debug handlers and
// config-file loading.
func (reg *Registry) Viper() *viper.Viper { return reg.v }

// Options configures a single value declared with Configure.
type Options[T any] struct {
	// Default is the value returned when neither flag, environment
	// variable nor config file provide one.
	Default T

	// FlagName, when set, is the pflag this value binds to in
	// BindFlags.
	FlagName string

	// EnvVars are environment variables bound to this value.
	EnvVars []string

	// GetFunc overrides how the value is read from viper. Leave nil
	// for the built-in handling of common types.
	GetFunc func(v *viper.Viper) func(key string) T
}

// Bindable is the type-independent part of Value, used by BindFlags.
type Bindable interface {
	Key() string

	bindFlag(fs *pflag.FlagSet) error
}

// Value is a typed handle on a configured key.
type Value[T any] interface {
	Bindable

	Default() T
	Get() T
}

type value[T any] struct {
	reg      *Registry
	key      string
	def      T
	flagName string
	get      func(key string) T
}

// Configure declares a typed configuration key on the registry.
func Configure[T any](reg *Registry, key string, opts Options[T]) Value[T] {
	reg.v.SetDefault(key, opts.Default)
	for _, env := range opts.EnvVars {
		_ = reg.v.BindEnv(key, env)
	}

	get := opts.GetFunc
	if get == nil {
		get = getFuncForType[T]
	}

	return &value[T]{
		reg:      reg,
		key:      key,
		def:      opts.Default,
		flagName: opts.FlagName,
		get:      get(reg.v),
	}
}

func (val *value[T]) Key() string { return val.key }

func (val *value[T]) Default() T { return val.def }

func (val *value[T]) Get() T { return val.get(val.key) }

func (val *value[T]) bindFlag(fs *pflag.FlagSet) error {
	if val.flagName == "" {
		return nil
	}
	f := fs.Lookup(val.flagName)
	if f == nil {
		return fmt.Errorf("flag %q not registered on flag set", val.flagName)
	}
	return val.reg.v.BindPFlag(val.key, f)
}

// BindFlags binds each value's flag on the given flag set to its
// configuration key. Flags must be registered on the set first; a
// missing flag panics, as that is a wiring bug.
func BindFlags(fs *pflag.FlagSet, values ...Bindable) {
	for _, val := range values {
		if err := val.bindFlag(fs); err != nil {
			panic(fmt.Sprintf("viperutil: binding %s: %v", val.Key(), err))
		}
	}
}

// getFuncForType returns a getter for the supported value types.
func getFuncForType[T any](v *viper.Viper) func(key string) T {
	return func(key string) T {
		var t T
		switch any(t).(type) {
		case string:
			return any(v.GetString(key)).(T)
		case bool:
			return any(v.GetBool(key)).(T)
		case int:
			return any(v.GetInt(key)).(T)
		case int64:
			return any(v.GetInt64(key)).(T)
		case uint64:
			return any(v.GetUint64(key)).(T)
		case float64:
			return any(v.GetFloat64(key)).(T)
		case time.Duration:
			return any(v.GetDuration(key)).(T)
		case []string:
			return any(v.GetStringSlice(key)).(T)
		default:
			panic(fmt.Sprintf("viperutil: no built-in getter for type %T; set Options.GetFunc", t))
		}
	}
}
