// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

// Ray-tracing extends the abstract GPU model with
// acceleration structures, ray-tracing pipelines and
// shader binding tables. It follows the same interface
// shape as the rest of this package: GPU creates the
// concrete resources, and callers interact with them
// through narrow interfaces.

// AccelStructType distinguishes bottom-level from
// top-level acceleration structures.
type AccelStructType int

// Acceleration structure types.
const (
	// ABottomLevel indexes triangle/AABB geometry
	// belonging to a single mesh.
	ABottomLevel AccelStructType = iota
	// ATopLevel indexes instances, each referring
	// to a bottom-level acceleration structure plus
	// a transform.
	ATopLevel
)

// GeometryTriangles describes a triangle geometry entry
// for bottom-level acceleration structure creation.
type GeometryTriangles struct {
	VertexBuf    Buffer
	VertexFormat VertexFmt
	VertexStride int64
	VertexOff    int64
	VertexCount  int
	IndexBuf     Buffer
	IndexFormat  IndexFmt
	IndexOff     int64
	IndexCount   int
	Opaque       bool
}

// Instance describes a single instance entry for
// top-level acceleration structure creation.
// Transform is a row-major 3x4 affine matrix.
type Instance struct {
	Transform   [12]float32
	ID          uint32
	Mask        uint8
	HitGroup    uint32
	BLAS        AccelStruct
}

// AccelStruct is the interface that defines a GPU
// acceleration structure (BLAS or TLAS).
type AccelStruct interface {
	Destroyer

	// Type returns whether this is a BLAS or a TLAS.
	Type() AccelStructType
}

// AccelStructBuilder is the interface that a GPU may
// implement to support building acceleration structures.
// Building happens on the device timeline: callers record
// a build command into a CmdBuffer and the structure only
// becomes valid for tracing once that command buffer has
// completed execution.
type AccelStructBuilder interface {
	// NewBLAS creates a new bottom-level acceleration
	// structure over the given triangle geometries.
	// The structure is not built until BuildAccelStructs
	// is recorded and executed.
	NewBLAS(geom []GeometryTriangles) (AccelStruct, error)

	// NewTLAS creates a new top-level acceleration
	// structure over the given instances.
	// The structure is not built until BuildAccelStructs
	// is recorded and executed. Rebuilding an existing
	// TLAS with a new instance list is done by creating
	// a new TLAS and discarding the old one once frames
	// referencing it have completed.
	NewTLAS(inst []Instance) (AccelStruct, error)
}

// HitGroupType is the type of a ray-tracing shader
// group's hit behavior.
type HitGroupType int

// Shader group types.
const (
	// GGeneral groups a single ray-generation, miss
	// or callable shader.
	GGeneral HitGroupType = iota
	// GTriangleHit groups closest-hit and optional
	// any-hit shaders for triangle geometry.
	GTriangleHit
	// GProceduralHit groups an intersection shader
	// plus closest-hit/any-hit shaders for procedural
	// (AABB) geometry.
	GProceduralHit
)

// ShaderGroup describes a single ray-tracing shader group.
// General indexes a ShaderFunc for GGeneral groups.
// ClosestHit/AnyHit/Intersection index ShaderFuncs for hit
// groups; a negative index means the stage is unused.
type ShaderGroup struct {
	Type         HitGroupType
	General      int
	ClosestHit   int
	AnyHit       int
	Intersection int
}

// RTState defines the combination of programmable stages
// and shader groups of a ray-tracing pipeline.
// Ray-tracing pipelines are created from RT states, mirroring
// the relationship between GraphState/CompState and their
// respective pipelines.
type RTState struct {
	Funcs        []ShaderFunc
	Groups       []ShaderGroup
	Desc         DescTable
	MaxRecursion int
}

// RTPipeline is the interface that a Pipeline may
// additionally implement when created from an RTState.
// It exposes the group handles needed to build a shader
// binding table.
type RTPipeline interface {
	Pipeline

	// GroupHandles returns the opaque shader-group handle
	// data for every group in the pipeline, concatenated
	// in declaration order. The handle size is
	// backend-specific; Limits does not report it.
	GroupHandles() ([]byte, error)
}

// RTPipeliner is the interface that a GPU may implement to
// support ray-tracing pipeline creation and dispatch.
type RTPipeliner interface {
	// NewRTPipeline creates a new ray-tracing pipeline.
	NewRTPipeline(state *RTState) (RTPipeline, error)

	// NewShaderTable creates a device-local shader binding
	// table from the given pipeline's group handles.
	// rgen, miss, hit and call are indices into the RTState's
	// Groups slice (rgen must reference exactly one GGeneral
	// group; call may be empty).
	NewShaderTable(pl RTPipeline, rgen []int, miss []int, hit []int, call []int) (ShaderTable, error)

	// TraceRays records a ray-tracing dispatch.
	// It must only be called during compute work
	// (see CmdBuffer.BeginWork/EndWork) on a command
	// buffer where an RTPipeline is currently bound via
	// SetPipeline.
	TraceRays(cb CmdBuffer, tbl ShaderTable, width, height, depth int)
}

// ShaderTable is the interface that defines a shader
// binding table: a device buffer partitioned into
// ray-generation, miss, hit and callable regions, each
// with its own stride.
type ShaderTable interface {
	Destroyer

	// Region returns the {offset, stride, size} for the
	// given group kind, suitable for a TraceRays call
	// that wants to restrict itself to it.
	Region(kind ShaderTableKind) (offset, stride, size int64)
}

// ShaderTableKind identifies one of the four regions of
// a ShaderTable.
type ShaderTableKind int

// Shader binding table regions.
const (
	TableRayGen ShaderTableKind = iota
	TableMiss
	TableHit
	TableCall
)

// PipelineCache is the interface that defines a
// serializable cache of compiled pipeline state, used to
// accelerate subsequent pipeline creation across runs.
type PipelineCache interface {
	Destroyer

	// Data returns the current contents of the cache in
	// an implementation-defined, portable binary format.
	// The first bytes encode a header that includes a
	// vendor/device UUID; two caches built from identical
	// shader sets on the same device produce identical
	// data past the header.
	Data() ([]byte, error)
}

