// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package scene

import "github.com/go-gl/mathgl/mgl32"

// Vertex is the host-side ShadingData source (spec §3):
// everything needed to pack a VertexLayout record once the
// owning instance's transform is known.
type Vertex struct {
	Position           mgl32.Vec3
	GeometryNormal     mgl32.Vec3
	ShadingNormal      mgl32.Vec3
	Tangent            mgl32.Vec3
	TangentSign        float32
	Texcoord           mgl32.Vec2
	TexcoordScreenSize float32
	MeanCurvature      float32
}

// pack writes v's packed GPU record. materialIndex identifies
// the owning instance's material in the material table.
func (v *Vertex) pack(materialIndex uint32) VertexLayout {
	var l VertexLayout
	l.SetPosition(v.Position)
	l.SetShapeArea(0) // filled in by Scene.packInstanceVertices from triangle area
	l.SetGeometryNormal(v.GeometryNormal)
	l.SetShadingNormal(v.ShadingNormal)
	l.SetTangent(v.Tangent, v.TangentSign)
	l.SetTexcoord(v.Texcoord)
	l.SetTexcoordScreenSize(v.TexcoordScreenSize)
	l.SetMeanCurvature(v.MeanCurvature)
	l.SetFlagsMaterial(0, uint16(materialIndex))
	return l
}

// Instance places a triangle mesh in world space and binds it
// to a material. Vertices is the mesh's raw (object-space)
// vertex data; Scene transforms a copy of it into the flattened
// world-space vertex buffer on each Build call, mirroring engine/mesh.go's primitive-flattening but
// generalized from per-draw-call GPU buffers to the single
// frame-wide vertex/instance tables the path-transport kernels
// index by instance/vertex offset instead of a bound vertex
// buffer per draw call.
type Instance struct {
	Transform     mgl32.Mat4
	PrevTransform mgl32.Mat4
	Vertices      []Vertex
	// Indices groups Vertices into triangles; if empty,
	// Vertices is interpreted as an unindexed triangle list.
	Indices       []uint32
	MaterialIndex uint32
	ID            uint32
}

func (inst *Instance) normalMatrix() mgl32.Mat4 {
	n := inst.Transform.Inv().Transpose()
	return n
}

// triangleCount returns the number of triangles described by
// inst's vertex/index data.
func (inst *Instance) triangleCount() int {
	if len(inst.Indices) > 0 {
		return len(inst.Indices) / 3
	}
	return len(inst.Vertices) / 3
}

// transformPoint applies inst's world transform to an
// object-space point.
func (inst *Instance) transformPoint(p mgl32.Vec3) mgl32.Vec3 {
	v := inst.Transform.Mul4x1(mgl32.Vec4{p[0], p[1], p[2], 1})
	return mgl32.Vec3{v[0], v[1], v[2]}
}

// triangleArea returns the world-space area of triangle tri.
func (inst *Instance) triangleArea(tri int) float32 {
	a, b, c := inst.triangleVerts(tri)
	wa := inst.transformPoint(a.Position)
	wb := inst.transformPoint(b.Position)
	wc := inst.transformPoint(c.Position)
	return wb.Sub(wa).Cross(wc.Sub(wa)).Len() * 0.5
}

func (inst *Instance) triangleVerts(tri int) (a, b, c *Vertex) {
	if len(inst.Indices) > 0 {
		i := inst.Indices[tri*3:]
		return &inst.Vertices[i[0]], &inst.Vertices[i[1]], &inst.Vertices[i[2]]
	}
	v := inst.Vertices[tri*3:]
	return &v[0], &v[1], &v[2]
}
