// Package shader holds the shader programs that pipelines are built from.
//
// A Set groups the stage modules of one program. A set may carry extra
// variants keyed by DebugMode; a mode without its own variant falls back to
// the regular modules.
package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// ErrNoStages is returned when a set has no modules for a debug mode.
var ErrNoStages = errors.New("shader: set has no stages")

// Stage is a programmable pipeline stage.
type Stage uint8

// Stages.
const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
	StageTask
	StageMesh
	StageRayGen
	StageMiss
	StageClosestHit
	StageAnyHit
	StageIntersection
	StageCallable
)

var stageNames = [...]string{
	"vertex", "fragment", "compute", "task", "mesh", "raygen",
	"miss", "closest-hit", "any-hit", "intersection", "callable",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// DebugMode selects a debug variant of a shader set. DebugNone is the
// regular program.
type DebugMode uint32

// DebugNone selects the regular program.
const DebugNone DebugMode = 0

// Module is one compiled stage of a program.
type Module struct {
	Stage      Stage
	EntryPoint string
	Raw        hal.ShaderModule
	hash       uint64
}

// NewModule wraps an existing HAL module. code identifies the module
// contents and feeds Hash; it may be nil.
func NewModule(stage Stage, entry string, raw hal.ShaderModule, code []uint32) *Module {
	return &Module{Stage: stage, EntryPoint: entry, Raw: raw, hash: hashCode(code)}
}

// Hash returns the hash of the module code.
func (m *Module) Hash() uint64 { return m.hash }

func hashCode(code []uint32) uint64 {
	h := fnv.New64a()
	var buf [4]byte
	for _, w := range code {
		binary.LittleEndian.PutUint32(buf[:], w)
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(source string) ([]uint32, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("shader: compile: %w", err)
	}
	code := make([]uint32, len(spirv)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	return code, nil
}

// ModuleCreator is the part of hal.Device that creates shader modules.
type ModuleCreator interface {
	CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error)
}

// CreateModule compiles source and creates the HAL module for one stage.
func CreateModule(dev ModuleCreator, label string, stage Stage, entry, source string) (*Module, error) {
	code, err := CompileWGSL(source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	raw, err := dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return nil, fmt.Errorf("shader: create module %s: %w", label, err)
	}
	return NewModule(stage, entry, raw, code), nil
}

var nextSetID atomic.Uint64

// Set is the stage modules of one program and its debug variants.
//
// Set is safe for concurrent use.
type Set struct {
	id    uint64
	label string

	mu       sync.RWMutex
	variants map[DebugMode][]*Module
}

// NewSet creates a set with the regular stage modules.
func NewSet(label string, modules ...*Module) *Set {
	s := &Set{
		id:       nextSetID.Add(1),
		label:    label,
		variants: make(map[DebugMode][]*Module),
	}
	if len(modules) > 0 {
		s.variants[DebugNone] = modules
	}
	return s
}

// ID returns an identifier unique within the process.
func (s *Set) ID() uint64 { return s.id }

// Label returns the debug name of the set.
func (s *Set) Label() string { return s.label }

// AddVariant registers the modules used for mode.
func (s *Set) AddVariant(mode DebugMode, modules ...*Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[mode] = modules
}

// Resolve returns the debug mode actually served for mode: mode itself if
// it has a variant, DebugNone otherwise. Pipeline keys use the resolved
// mode so that unsupported debug modes share the regular pipeline.
func (s *Set) Resolve(mode DebugMode) DebugMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.variants[mode]; ok {
		return mode
	}
	return DebugNone
}

// Stages returns the modules for mode, falling back to the regular program.
func (s *Set) Stages(mode DebugMode) ([]*Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.variants[mode]; ok {
		return m, nil
	}
	if m, ok := s.variants[DebugNone]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoStages, s.label)
}

// Stage returns the module of the given stage for mode, or nil.
func (s *Set) Stage(mode DebugMode, stage Stage) *Module {
	mods, err := s.Stages(mode)
	if err != nil {
		return nil
	}
	for _, m := range mods {
		if m.Stage == stage {
			return m
		}
	}
	return nil
}
