// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package shaderdb keys compiled shaders and pipeline state
// objects so that passes can look them up by name instead of
// rebuilding them every frame, and persists the driver's
// pipeline cache blob across runs.
package shaderdb

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"hybridrender.dev/hri/driver"
)

// BindPoint identifies which pipeline type a PSO wraps, since
// driver.Pipeline itself carries no such tag.
type BindPoint int

// Bind points.
const (
	Graphics BindPoint = iota
	Compute
	RayTracing
)

// PSO pairs a compiled driver.Pipeline with the bind point it
// was created for, so callers can SetPipeline without having
// to remember which NewPipeline/NewRTPipeline call produced
// it.
type PSO struct {
	Bind     BindPoint
	Pipeline driver.Pipeline
}

// RTPipeline narrows PSO.Pipeline back to a driver.RTPipeline
// for callers that need GroupHandles; it panics if the PSO
// was not registered with Bind == RayTracing.
func (p *PSO) RTPipeline() driver.RTPipeline {
	return p.Pipeline.(driver.RTPipeline)
}

// DB owns every compiled shader, PSO and the pipeline cache
// backing their creation. It outlives individual passes: a
// pass looks up its PSOs from the DB by name (DB.PSO) each
// time it records its commands in DrawFrame.
type DB struct {
	gpu   driver.GPU
	cache driver.PipelineCache

	shaders map[string]driver.ShaderCode
	psos    map[string]*PSO

	cachePath string
}

// Open creates a DB backed by gpu, loading a persisted
// pipeline cache from path if it exists and path is
// non-empty. A missing or unreadable file is not an error:
// the cache just starts empty, exactly as
// GPU.NewPipelineCache does for mismatched data.
func Open(gpu driver.GPU, path string) (*DB, error) {
	var data []byte
	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			data = b
		} else if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("shaderdb: failed to read pipeline cache")
		}
	}
	cache, err := gpu.NewPipelineCache(data)
	if err != nil {
		return nil, errors.Wrap(err, "shaderdb: creating pipeline cache")
	}
	return &DB{
		gpu:       gpu,
		cache:     cache,
		shaders:   make(map[string]driver.ShaderCode),
		psos:      make(map[string]*PSO),
		cachePath: path,
	}, nil
}

// RegisterShader compiles code under name, replacing any
// prior shader registered under the same name (the old code
// is destroyed, same as Close's pattern for PSOs).
func (db *DB) RegisterShader(name string, code []byte) (driver.ShaderCode, error) {
	sc, err := db.gpu.NewShaderCode(code)
	if err != nil {
		return nil, errors.Wrapf(err, "shaderdb: compiling shader %q", name)
	}
	if old, ok := db.shaders[name]; ok {
		old.Destroy()
	}
	db.shaders[name] = sc
	return sc, nil
}

// Shader returns the shader previously registered under name.
func (db *DB) Shader(name string) (driver.ShaderCode, bool) {
	sc, ok := db.shaders[name]
	return sc, ok
}

// Func builds a driver.ShaderFunc from a previously
// registered shader.
func (db *DB) Func(name, entry string) (driver.ShaderFunc, error) {
	sc, ok := db.shaders[name]
	if !ok {
		return driver.ShaderFunc{}, errors.Errorf("shaderdb: shader %q not registered", name)
	}
	return driver.ShaderFunc{Code: sc, Name: entry}, nil
}

// RegisterGraphics creates a graphics pipeline from state and
// stores it under name.
func (db *DB) RegisterGraphics(name string, state *driver.GraphState) (*PSO, error) {
	return db.register(name, Graphics, state)
}

// RegisterCompute creates a compute pipeline from state and
// stores it under name.
func (db *DB) RegisterCompute(name string, state *driver.CompState) (*PSO, error) {
	return db.register(name, Compute, state)
}

// RegisterRTPipeline creates a ray-tracing pipeline from state
// and stores it under name. gpu must additionally implement
// driver.RTPipeliner; the caller is expected to have already
// confirmed this (the renderer checks it once at start-up
// rather than on every registration).
func (db *DB) RegisterRTPipeline(name string, rt driver.RTPipeliner, state *driver.RTState) (*PSO, error) {
	pl, err := rt.NewRTPipeline(state)
	if err != nil {
		return nil, errors.Wrapf(err, "shaderdb: creating ray-tracing pipeline %q", name)
	}
	pso := &PSO{Bind: RayTracing, Pipeline: pl}
	db.store(name, pso)
	return pso, nil
}

func (db *DB) register(name string, bind BindPoint, state any) (*PSO, error) {
	pl, err := db.gpu.NewPipeline(state)
	if err != nil {
		return nil, errors.Wrapf(err, "shaderdb: creating pipeline %q", name)
	}
	pso := &PSO{Bind: bind, Pipeline: pl}
	db.store(name, pso)
	return pso, nil
}

func (db *DB) store(name string, pso *PSO) {
	if old, ok := db.psos[name]; ok {
		old.Pipeline.Destroy()
	}
	db.psos[name] = pso
}

// PSO returns the pipeline state object registered under
// name.
func (db *DB) PSO(name string) (*PSO, bool) {
	pso, ok := db.psos[name]
	return pso, ok
}

// Persist writes the pipeline cache's current contents to the
// path given to Open. It is a no-op if that path is empty.
func (db *DB) Persist() error {
	if db.cachePath == "" {
		return nil
	}
	data, err := db.cache.Data()
	if err != nil {
		return errors.Wrap(err, "shaderdb: reading pipeline cache data")
	}
	if err := os.WriteFile(db.cachePath, data, 0o644); err != nil {
		return errors.Wrapf(err, "shaderdb: writing pipeline cache to %q", db.cachePath)
	}
	return nil
}

// Close persists the pipeline cache (logging, not failing, on
// error — a stale or missing cache only costs a recompile on
// next start-up) and destroys every shader, PSO and the cache
// itself.
func (db *DB) Close() {
	if err := db.Persist(); err != nil {
		log.Warn().Err(err).Msg("shaderdb: failed to persist pipeline cache")
	}
	for _, pso := range db.psos {
		pso.Pipeline.Destroy()
	}
	for _, sc := range db.shaders {
		sc.Destroy()
	}
	db.cache.Destroy()
	*db = DB{}
}
