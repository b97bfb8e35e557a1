// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/lumenforge/vkpt/driver"
	"github.com/lumenforge/vkpt/internal/respool"
)

// Scene is the flattened instance/vertex/material/light frame
// data the path-transport kernels read (spec §3's "scene
// frame-data"), rebuilt only when Dirty and otherwise reused,
// per spec §3's lifecycle rule. It generalizes
// engine/mesh.go's meshBuffer (store-by-span-into-one-buffer)
// from per-draw-call vertex/index buffers to one GPU-wide
// instance/vertex/material/light table indexed by kernels
// instead of bound at draw time.
type Scene struct {
	Instances []Instance
	Materials []Material
	Lights    LightTable

	// Dirty marks that Instances, Materials or Lights.Lights
	// changed since the last Build and the GPU tables must be
	// rebuilt (spec §3: "Scene frame-data is rebuilt when the
	// scene graph is marked dirty and otherwise reused").
	Dirty bool
}

// FrameData names the GPU buffers a built Scene exposes to the
// transport/reservoir kernels.
type FrameData struct {
	Instances driver.Buffer
	Vertices  driver.Buffer
	Materials driver.Buffer
	Lights    driver.Buffer
	// VertexCount is the total number of flattened vertices,
	// needed by kernels that dispatch one thread per vertex
	// (e.g. a future skinning/deformation pass).
	VertexCount   int
	InstanceCount int
	LightCount    int
}

// Build flattens the scene graph into the four GPU-side tables
// and uploads them via pool on every call (the respool.Pool
// returns the same slot for an unchanged key). Only the light
// selection table is gated on s.Dirty: it is rebuilt when Dirty
// is set, and Build clears Dirty before returning. Callers reuse
// the prior tables by not calling Build while Dirty is false, as
// the engine's renderer does.
func (s *Scene) Build(pool *respool.Pool) (FrameData, error) {
	if s.Dirty {
		s.Lights.Build()
	}

	instanceRecords := make([]InstanceLayout, len(s.Instances))
	var vertexRecords []VertexLayout
	firstVertex := uint32(0)

	for i := range s.Instances {
		inst := &s.Instances[i]
		var rec InstanceLayout
		world := inst.Transform
		normal := inst.normalMatrix()
		rec.SetWorld(&world)
		rec.SetNormal(&normal)
		prev := inst.PrevTransform
		rec.SetPrevWorld(&prev)
		vcount := uint32(len(inst.Vertices))
		rec.SetGeometry(firstVertex, vcount, inst.MaterialIndex)
		rec.SetID(inst.ID)
		instanceRecords[i] = rec

		vertexRecords = append(vertexRecords, s.packInstanceVertices(inst)...)
		firstVertex += vcount
	}

	materialRecords := make([]MaterialLayout, len(s.Materials))
	for i := range s.Materials {
		materialRecords[i] = s.Materials[i].pack()
	}

	lightRecords := make([]LightLayout, len(s.Lights.Lights))
	for i := range s.Lights.Lights {
		lightRecords[i] = s.Lights.Lights[i].pack()
	}

	var data FrameData
	var err error
	if data.Instances, err = respool.UploadData(pool, "scene.instances", driver.UShaderRead|driver.UCopyDst, instanceRecords); err != nil {
		return FrameData{}, err
	}
	if data.Vertices, err = respool.UploadData(pool, "scene.vertices", driver.UShaderRead|driver.UCopyDst, vertexRecords); err != nil {
		return FrameData{}, err
	}
	if data.Materials, err = respool.UploadData(pool, "scene.materials", driver.UShaderRead|driver.UCopyDst, materialRecords); err != nil {
		return FrameData{}, err
	}
	if data.Lights, err = respool.UploadData(pool, "scene.lights", driver.UShaderRead|driver.UCopyDst, lightRecords); err != nil {
		return FrameData{}, err
	}
	data.VertexCount = len(vertexRecords)
	data.InstanceCount = len(instanceRecords)
	data.LightCount = len(lightRecords)

	s.Dirty = false
	return data, nil
}

// packInstanceVertices packs inst's vertices into world-space
// GPU records, filling in each triangle's shapeArea (needed to
// convert an emissive-triangle's area pdf to solid angle, spec
// §4.3).
func (s *Scene) packInstanceVertices(inst *Instance) []VertexLayout {
	records := make([]VertexLayout, len(inst.Vertices))
	for i := range inst.Vertices {
		v := inst.Vertices[i]
		v.Position = inst.transformPoint(v.Position)
		records[i] = v.pack(inst.MaterialIndex)
	}
	for tri := 0; tri < inst.triangleCount(); tri++ {
		area := inst.triangleArea(tri)
		s.distributeTriangleArea(inst, records, tri, area)
	}
	return records
}

// distributeTriangleArea assigns 1/3 of a triangle's area to
// each of its vertices' shapeArea field, so a vertex shared by
// multiple triangles (a shared mesh vertex) carries the sum of
// its incident triangles' thirds — the usual per-vertex area
// estimate used to importance-sample an emissive mesh uniformly
// by surface area.
func (s *Scene) distributeTriangleArea(inst *Instance, records []VertexLayout, tri int, area float32) {
	third := area / 3
	var idx [3]int
	if len(inst.Indices) > 0 {
		i := inst.Indices[tri*3:]
		idx = [3]int{int(i[0]), int(i[1]), int(i[2])}
	} else {
		idx = [3]int{tri * 3, tri*3 + 1, tri*3 + 2}
	}
	for _, j := range idx {
		records[j][3] += third
	}
}

// AddSphereLight registers a standalone analytic sphere light
// and marks the scene dirty.
func (s *Scene) AddSphereLight(center mgl32.Vec3, radius float32, emission mgl32.Vec3) {
	area := float32(4*math.Pi) * radius * radius
	s.Lights.Lights = append(s.Lights.Lights, Light{
		Kind: LightSphere, Position: center, Radius: radius, Emission: emission, Area: area,
	})
	s.Dirty = true
}
