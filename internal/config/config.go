// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package config centralizes the engine's runtime tuning
// knobs: swap chain behavior, frame pipelining depth, ray
// tracing limits, descriptor pool sizing, render mode
// selection and pipeline cache placement. Values are loaded
// from (in ascending priority) built-in defaults, an optional
// config file and command-line flags, following the same
// viper/pflag layering the rest of the ecosystem uses.
package config

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"hybridrender.dev/hri/driver"
)

// RenderMode selects which pass graph the renderer builds.
type RenderMode int

const (
	// ModeRealtime runs the rasterized/ray-traced hybrid
	// G-buffer, direct illumination and deferred shading
	// pass graph.
	ModeRealtime RenderMode = iota

	// ModeReference runs the offline-quality path-traced
	// reference pass graph instead. The two modes are
	// mutually exclusive for a given Renderer.
	ModeReference
)

func (m RenderMode) String() string {
	switch m {
	case ModeRealtime:
		return "realtime"
	case ModeReference:
		return "reference"
	default:
		return "undefined"
	}
}

// Config holds every tunable the engine reads at start-up.
type Config struct {
	// VSyncMode selects the swap chain's present mode trade-off.
	VSyncMode driver.VSyncMode

	// FramesInFlight is the number of frame slots the
	// frame core pipelines concurrently.
	FramesInFlight int

	// MaxRTRecursionDepth bounds the ray-tracing pipeline's
	// recursion depth (driver.RTState.MaxRecursion).
	MaxRTRecursionDepth int

	// DescriptorPoolPerTypeCapacity is the configured number
	// of descriptors of each type per descriptor pool. It is
	// validated and loaded, but the driver/vk backend does not
	// read it: each descriptor heap sizes its single pool from
	// its own descriptors and copy count, and no pool is grown.
	DescriptorPoolPerTypeCapacity int

	// PipelineCachePath is where the shader database
	// persists its serialized driver.PipelineCache blob
	// between runs. Empty disables persistence.
	PipelineCachePath string

	// RenderMode selects the realtime or reference pass graph.
	RenderMode RenderMode

	// Debug enables the validation/debug layers the GPU
	// backend supports, at the cost of performance.
	Debug bool
}

const (
	dflFramesInFlight    = 2
	dflMaxRTRecursion    = 2
	dflDescPoolCapacity  = 256
	dflPipelineCachePath = "pipeline_cache.bin"
)

// Default returns the engine's built-in configuration.
func Default() Config {
	return Config{
		VSyncMode:                     driver.TripleBuffering,
		FramesInFlight:                dflFramesInFlight,
		MaxRTRecursionDepth:           dflMaxRTRecursion,
		DescriptorPoolPerTypeCapacity: dflDescPoolCapacity,
		PipelineCachePath:             dflPipelineCachePath,
		RenderMode:                    ModeRealtime,
		Debug:                         false,
	}
}

// Flags registers the config's command-line flags on fs and
// binds them into v, so that a later v.Unmarshal populates a
// Config with flag overrides applied on top of any config
// file and the built-in defaults set by Default.
func Flags(fs *pflag.FlagSet, v *viper.Viper) error {
	dfl := Default()
	fs.Int("frames-in-flight", dfl.FramesInFlight, "number of frames pipelined concurrently")
	fs.Int("rt-max-recursion", dfl.MaxRTRecursionDepth, "maximum ray-tracing recursion depth")
	fs.Int("desc-pool-capacity", dfl.DescriptorPoolPerTypeCapacity, "descriptor pool capacity per descriptor type")
	fs.String("pipeline-cache", dfl.PipelineCachePath, "path to the persisted pipeline cache blob")
	fs.String("mode", dfl.RenderMode.String(), "render mode: realtime or reference")
	fs.Bool("vsync", true, "enable vertical sync")
	fs.Bool("debug", dfl.Debug, "enable GPU backend validation layers")

	for _, name := range []string{
		"frames-in-flight", "rt-max-recursion", "desc-pool-capacity",
		"pipeline-cache", "mode", "vsync", "debug",
	} {
		if err := v.BindPFlag(name, fs.Lookup(name)); err != nil {
			return errors.Wrapf(err, "config: binding flag %q", name)
		}
	}
	return nil
}

// Load reads the layered configuration (defaults, optional
// config file already merged into v, then flags) out of v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	cfg.FramesInFlight = v.GetInt("frames-in-flight")
	cfg.MaxRTRecursionDepth = v.GetInt("rt-max-recursion")
	cfg.DescriptorPoolPerTypeCapacity = v.GetInt("desc-pool-capacity")
	cfg.PipelineCachePath = v.GetString("pipeline-cache")
	if v.GetBool("vsync") {
		cfg.VSyncMode = driver.TripleBuffering
	} else {
		cfg.VSyncMode = driver.Disabled
	}
	cfg.Debug = v.GetBool("debug")

	switch strings.ToLower(v.GetString("mode")) {
	case "realtime", "":
		cfg.RenderMode = ModeRealtime
	case "reference":
		cfg.RenderMode = ModeReference
	default:
		return Config{}, errors.Errorf("config: undefined render mode %q", v.GetString("mode"))
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.FramesInFlight < 1 {
		return fmt.Errorf("config: FramesInFlight must be at least 1, got %d", c.FramesInFlight)
	}
	if c.MaxRTRecursionDepth < 1 {
		return fmt.Errorf("config: MaxRTRecursionDepth must be at least 1, got %d", c.MaxRTRecursionDepth)
	}
	if c.DescriptorPoolPerTypeCapacity < 1 {
		return fmt.Errorf("config: DescriptorPoolPerTypeCapacity must be at least 1, got %d", c.DescriptorPoolPerTypeCapacity)
	}
	return nil
}
