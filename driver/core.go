// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

// GPU is the main interface to an underlying driver
// implementation.
// It is used to create other types and to execute commands.
// A GPU is obtained from a call to Driver.Open.
type GPU interface {
	// Driver returns the Driver that owns the GPU.
	Driver() Driver

	// Commit commits a batch of command buffers to the GPU
	// for execution.
	// This method sends the result to ch when all commands
	// complete execution. Command buffers in cb cannot be
	// used for recording until then.
	Commit(cb []CmdBuffer, ch chan<- error)

	// NewCmdBuffer creates a new command buffer.
	NewCmdBuffer() (CmdBuffer, error)

	// NewShaderCode creates a shader code object from a
	// compiled kernel binary. Compilation itself is an
	// external concern; this method only registers an
	// already-compiled result (see internal/shader.Handle
	// for the async compile step that produces data).
	NewShaderCode(data []byte) (ShaderCode, error)

	// NewDescHeap creates a new descriptor heap.
	NewDescHeap(ds []Descriptor) (DescHeap, error)

	// NewDescTable creates a new descriptor table.
	NewDescTable(dh []DescHeap) (DescTable, error)

	// NewPipeline creates a new compute pipeline.
	NewPipeline(state *CompState) (Pipeline, error)

	// NewBuffer creates a new buffer.
	NewBuffer(size int64, visible bool, usg Usage) (Buffer, error)

	// NewImage creates a new image.
	NewImage(pf PixelFmt, size Dim3D, layers, levels, samples int, usg Usage) (Image, error)

	// NewSampler creates a new Sampler.
	NewSampler(spln *Sampling) (Sampler, error)

	// FrameIndex returns the index of the frame currently
	// being recorded. It increases monotonically and never
	// wraps; the per-frame resource pool keys resource
	// reuse off this value.
	FrameIndex() uint64

	// Limits returns the implementation limits.
	// They are immutable for the lifetime of the GPU.
	Limits() Limits
}

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may allocate external
// memory that is not managed by GC, so Destroy must be
// called explicitly to ensure such memory is deallocated.
type Destroyer interface {
	Destroy()
}

// CmdBuffer is the interface that defines a command buffer.
// Commands are recorded into command buffers and later
// committed to the GPU for execution. Recording is split
// into logical blocks containing either compute or copy
// commands (this driver does not model rasterization). The
// usage is as follows: first, call Begin to prepare the
// command buffer for recording. Then, if it succeeds:
//
// To record compute commands:
//  1. call BeginWork
//  2. call SetPipeline/SetDescTableComp/PushConstants
//  3. call Dispatch commands
//  4. repeat 2-3 as needed
//  5. call EndWork
//
// To record copy commands:
//  1. call BeginBlit
//  2. call Copy*/Fill commands
//  3. call EndBlit
//
// Finally, call End and, if it succeeds, GPU.Commit. Begin*
// commands must not be nested, and must always be ended
// before another call to Begin* and prior to the final End.
type CmdBuffer interface {
	Destroyer

	// Begin prepares the command buffer for recording. It
	// needs to be called again if the command buffer is
	// executed or reset.
	Begin() error

	// BeginWork begins compute work. If wait is set, compute
	// work only starts when all previous commands recorded
	// in the same command buffer are done executing.
	// Dispatch commands may run in parallel.
	BeginWork(wait bool)

	// EndWork ends the current compute work.
	EndWork()

	// BeginBlit begins data transfer. If wait is set, data
	// transfer only starts when all previous commands
	// recorded in the same command buffer are done
	// executing. Copy/fill commands may run in parallel.
	BeginBlit(wait bool)

	// EndBlit ends the current data transfer.
	EndBlit()

	// SetPipeline sets the compute pipeline.
	SetPipeline(pl Pipeline)

	// SetDescTableComp sets a descriptor table range for
	// compute pipelines.
	SetDescTableComp(table DescTable, start int, heapCopy []int)

	// PushConstants uploads inline constant data for the
	// currently bound pipeline, starting at the given byte
	// offset. Used for the VcmPushConstants/PathTracer/
	// TinyPT/BDPT/Denoiser parameter blocks.
	PushConstants(offset int, data []byte)

	// Dispatch dispatches compute thread groups.
	// It must only be called during compute work.
	Dispatch(grpCountX, grpCountY, grpCountZ int)

	// CopyBuffer copies data between buffers.
	// It must only be called during data transfer.
	CopyBuffer(param *BufferCopy)

	// CopyImage copies data between images.
	// It must only be called during data transfer.
	CopyImage(param *ImageCopy)

	// CopyBufToImg copies data from a buffer to an image.
	// It must only be called during data transfer.
	CopyBufToImg(param *BufImgCopy)

	// CopyImgToBuf copies data from an image to a buffer.
	// It must only be called during data transfer.
	CopyImgToBuf(param *BufImgCopy)

	// Fill fills a buffer range with copies of a byte value.
	// It must only be called during data transfer.
	// off and size must be aligned to 4 bytes.
	Fill(buf Buffer, off int64, value byte, size int64)

	// ClearColorImage clears the given image view to a
	// solid color. It must only be called during data
	// transfer. Used to clear accumulation/target images;
	// there is no render-pass clear since no render pass
	// is modeled.
	ClearColorImage(view ImageView, color [4]float32)

	// Barrier inserts a number of global barriers in the
	// command buffer. See internal/barrier for the policy
	// that decides when these are actually emitted versus
	// coalesced.
	Barrier(b []Barrier)

	// Transition inserts a number of image layout
	// transitions in the command buffer, optionally also
	// transferring queue family ownership.
	Transition(t []Transition)

	// End ends command recording and prepares the command
	// buffer for execution. New recordings are not allowed
	// until the command buffer is executed or reset. Upon
	// failure, the command buffer is reset.
	End() error

	// Reset discards all recorded commands from the
	// command buffer.
	Reset() error

	// IsRecording reports whether Begin was called without
	// a matching End/Reset since.
	IsRecording() bool
}

// BufferCopy describes the parameters of a copy command
// that copies data from one buffer to another.
type BufferCopy struct {
	From    Buffer
	FromOff int64
	To      Buffer
	ToOff   int64
	Size    int64
}

// ImageCopy describes the parameters of a copy command
// that copies data from one image to another.
type ImageCopy struct {
	From      Image
	FromOff   Off3D
	FromLayer int
	FromLevel int
	To        Image
	ToOff     Off3D
	ToLayer   int
	ToLevel   int
	Size      Dim3D
	Layers    int
}

// BufImgCopy describes the parameters of a copy command
// that copies data between a buffer and an image.
// BufOff must be aligned to 512 bytes.
// Stride[0] must be aligned to 256 bytes.
type BufImgCopy struct {
	Buf    Buffer
	BufOff int64
	// Stride specifies the addressing of image data in the
	// buffer, in pixels. Stride[0] refers to the row length
	// and Stride[1] refers to the image height.
	Stride [2]int64
	Img    Image
	ImgOff Off3D
	Layer  int
	Level  int
	Size   Dim3D
}

// Sync is the type of a synchronization scope.
type Sync int

// Synchronization scopes. Only compute-shading and transfer
// stages are modeled; rasterization stages (vertex input,
// fragment shading, color/DS output, resolve, draw) are out
// of scope.
const (
	SComputeShading Sync = 1 << iota
	SCopy
	SAll
	SNone Sync = 0
)

// Access is the type of a memory access scope.
type Access int

// Memory access scopes.
const (
	AShaderRead Access = 1 << iota
	AShaderWrite
	ACopyRead
	ACopyWrite
	AHostRead
	AHostWrite
	AAnyRead
	AAnyWrite
	ANone Access = 0
)

// HasWrite reports whether a carries any write bit. The
// barrier scheduler must always emit a barrier for a
// transition whose previous access had a write bit set,
// even when the new state is otherwise identical to the
// cached one.
func (a Access) HasWrite() bool {
	return a&(AShaderWrite|ACopyWrite|AHostWrite|AAnyWrite) != 0
}

// Layout is the type of an image layout.
type Layout int

// Image layouts.
const (
	LUndefined Layout = iota
	LGeneral
	LCopySrc
	LCopyDst
	LShaderRead
	LPresent
)

// Barrier represents a synchronization barrier.
type Barrier struct {
	SyncBefore   Sync
	SyncAfter    Sync
	AccessBefore Access
	AccessAfter  Access
}

// Transition represents a layout transition on a specific
// image subresource. QueueBefore/QueueAfter select an
// ownership transfer when they differ; equal values (or
// both zero) mean no transfer is requested.
type Transition struct {
	Barrier

	LayoutBefore Layout
	LayoutAfter  Layout
	QueueBefore  int
	QueueAfter   int
	IView        ImageView
}

// ShaderCode is the interface that defines a shader binary
// for execution in a programmable pipeline stage.
type ShaderCode interface {
	Destroyer
}

// ShaderFunc specifies a function within a shader binary.
type ShaderFunc struct {
	Code ShaderCode
	Name string
}

// Stage is a mask of programmable stages.
type Stage int

// Stages. Only compute is modeled.
const (
	SCompute Stage = 1 << iota
)

// DescType is the type of a descriptor.
type DescType int

// Descriptor types.
const (
	// Read/write buffer.
	DBuffer DescType = iota
	// Read/write image.
	DImage
	// Constant buffer.
	DConstant
	// Sampled texture.
	DTexture
	// Texture sampler.
	DSampler
	// Top-level acceleration structure.
	DAccelStruct
)

// Descriptor describes data for use in shaders.
type Descriptor struct {
	Type   DescType
	Stages Stage
	Nr     int
	Len    int
}

// DescHeap is the interface that defines a set of descriptors
// for use in programmable pipeline stages.
type DescHeap interface {
	Destroyer

	// New creates enough storage for n copies of each
	// descriptor. All copies from a previous call to New
	// are invalidated, unless n equals Count, in which case
	// it is a no-op. Calling New(0) frees all storage.
	New(n int) error

	// SetBuffer updates the buffer ranges referred by the
	// given descriptor of the given heap copy.
	// The descriptor must be of type DBuffer or DConstant.
	SetBuffer(cpy, nr, start int, buf []Buffer, off, size []int64)

	// SetImage updates the image views referred by the
	// given descriptor of the given heap copy.
	// The descriptor must be of type DImage or DTexture.
	SetImage(cpy, nr, start int, iv []ImageView)

	// SetSampler updates the samplers referred by the given
	// descriptor of the given heap copy.
	// The descriptor must be of type DSampler.
	SetSampler(cpy, nr, start int, splr []Sampler)

	// Count returns the number of heap copies created by
	// New.
	Count() int
}

// DescTable is the interface that defines the bindings
// between a number of descriptor heaps and the shaders in a
// pipeline.
type DescTable interface {
	Destroyer
}

// CompState defines the state of a compute pipeline: a
// single compute shader, the descriptor table describing
// the resources it accesses, and the size in bytes of its
// inline push-constant block.
type CompState struct {
	Func         ShaderFunc
	Desc         DescTable
	PushConstLen int
}

// Pipeline is the interface that defines a GPU pipeline.
type Pipeline interface {
	Destroyer
}

// Usage is a mask indicating valid uses for a resource.
type Usage int

// Usage flags for Buffer and Image.
const (
	// The resource can be read in shaders.
	UShaderRead Usage = 1 << iota
	// The resource can be written in shaders.
	UShaderWrite
	// The resource can provide constant data for shaders.
	// Valid only for Buffer.
	UShaderConst
	// The resource can be sampled in shaders.
	// Valid only for Image.
	UShaderSample
	// The resource can be used as a copy source.
	UCopySrc
	// The resource can be used as a copy destination.
	UCopyDst
	// The buffer can back, or be used to build, an
	// acceleration structure. Valid only for Buffer.
	UAccelStruct
	// The buffer supports device-address queries.
	// Used for VCM light-vertex buffers referenced by
	// pointer from push constants.
	UAddress
	// The resource can be used for any purpose.
	UGeneric Usage = 1<<iota - 1
)

// Buffer is the interface that defines a GPU buffer.
// The size of the buffer is fixed. When a larger buffer is
// necessary, a new one must be created and the data must be
// copied explicitly.
type Buffer interface {
	Destroyer

	// Visible returns whether the buffer is host visible.
	// Non-visible memory cannot be accessed by the CPU.
	Visible() bool

	// Bytes returns a slice of length Cap referring to the
	// underlying data. If the buffer is not host visible,
	// it returns nil instead. The slice is valid for the
	// lifetime of the buffer.
	Bytes() []byte

	// Cap returns the capacity of the buffer in bytes,
	// which may be greater than the size requested during
	// buffer creation. This value is immutable.
	Cap() int64

	// Usage returns the usage flags the buffer was created
	// with.
	Usage() Usage
}

// PixelFmt describes the format of a pixel.
type PixelFmt int

// Internal format bit.
// All internal formats have this bit set. Client code
// must not create images using internal formats.
const FInternal PixelFmt = 1 << 31

// IsInternal returns whether f is an internal format.
func (f PixelFmt) IsInternal() bool { return f&FInternal == FInternal }

// Size returns the number of bytes that a single pixel of
// format f occupies in a tightly packed buffer.
// It panics if f is not one of the PixelFmt constants
// defined below.
func (f PixelFmt) Size() int {
	switch f {
	case RGBA8un, RGBA8n:
		return 4
	case RG8un:
		return 2
	case R8un:
		return 1
	case RGBA16f:
		return 8
	case RG16f:
		return 4
	case R16f:
		return 2
	case RGBA32f:
		return 16
	case RG32f:
		return 8
	case R32f, R32ui:
		return 4
	case D16un:
		return 2
	case D32f:
		return 4
	default:
		panic("undefined PixelFmt")
	}
}

// Pixel formats.
const (
	// Color, 8-bit channels.
	RGBA8un PixelFmt = iota
	RGBA8n
	RG8un
	R8un
	// Color, 16-bit channels.
	RGBA16f
	RG16f
	R16f
	// Color, 32-bit channels, used for accumulation/history
	// buffers and the internal tonemap source image.
	RGBA32f
	RG32f
	R32f
	R32ui
	// Depth.
	D16un
	D32f
)

// Dim3D is a three-dimensional size.
type Dim3D struct {
	Width, Height, Depth int
}

// Off3D is a three-dimensional offset.
type Off3D struct {
	X, Y, Z int
}

// Image is the interface that defines a GPU image.
// Direct access to image memory is not provided, so copying
// data from the CPU to an image resource requires the use
// of a staging buffer.
type Image interface {
	Destroyer

	// NewView creates a new image view.
	// Its type must be valid according to the image from
	// which it is created and the parameters given when
	// calling this method. All views created from a given
	// image must be destroyed before the image itself is
	// destroyed.
	NewView(typ ViewType, layer, layers, level, levels int) (ImageView, error)

	// Format returns the image's pixel format.
	Format() PixelFmt

	// Extent returns the image's dimensions.
	Extent() Dim3D

	// Layers returns the number of array layers.
	Layers() int

	// Levels returns the number of mip levels.
	Levels() int

	// Usage returns the usage flags the image was created
	// with.
	Usage() Usage
}

// ViewType is the type of a resource view.
type ViewType int

// View types.
const (
	IView2D ViewType = iota
	IView2DArray
	IViewCube
)

// ImageView is the interface that defines a typed view of
// an Image resource.
type ImageView interface {
	Destroyer

	// Image returns the image this view was created from.
	Image() Image
}

// Filter is the type of sampler filters.
type Filter int

// Filters.
const (
	FNearest Filter = iota
	FLinear
	// FNoMipmap forces mip level 0 to be used.
	// It is only valid as the mip filter of a sampler.
	FNoMipmap
)

// AddrMode is the type of sampler address modes.
type AddrMode int

// Address modes.
const (
	AWrap AddrMode = iota
	AMirror
	AClamp
)

// Sampler is the interface that defines an image sampler.
type Sampler interface {
	Destroyer
}

// Sampling describes image sampler state.
type Sampling struct {
	Min    Filter
	Mag    Filter
	Mipmap Filter
	AddrU  AddrMode
	AddrV  AddrMode
	AddrW  AddrMode
	MinLOD float32
	MaxLOD float32
}

// Limits describes implementation limits.
// These may vary across drivers and devices.
type Limits struct {
	// Maximum width and height of 2D images.
	MaxImage2D int
	// Maximum width and height of cube images.
	MaxImageCube int
	// Maximum number of layers in an image.
	MaxLayers int

	// Maximum number of descriptor heaps in a descriptor
	// table.
	MaxDescHeaps int
	// Maximum number of buffer descriptors in a descriptor
	// table.
	MaxDBuffer int
	// Maximum number of image descriptors in a descriptor
	// table.
	MaxDImage int
	// Maximum number of constant descriptors in a
	// descriptor table.
	MaxDConstant int
	// Maximum number of texture descriptors in a
	// descriptor table.
	MaxDTexture int
	// Maximum number of sampler descriptors in a
	// descriptor table.
	MaxDSampler int
	// Maximum range of buffer descriptors.
	MaxDBufferRange int64
	// Maximum range of constant descriptors.
	MaxDConstantRange int64

	// Maximum dispatch count, per axis.
	MaxDispatch [3]int

	// Maximum size, in bytes, of an inline push-constant
	// block.
	MaxPushConstants int
}
