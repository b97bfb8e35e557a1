// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

// #include <stdlib.h>
// #include <proc.h>
import "C"

import (
	"unsafe"

	"github.com/lumenforge/vkpt/driver"
)

// pipeline implements driver.Pipeline.
type pipeline struct {
	d      *Driver
	pl     C.VkPipeline
	layout C.VkPipelineLayout
}

// NewPipeline creates a new compute pipeline.
// Rasterization pipelines are not modeled: this renderer
// dispatches the path-tracing/reservoir/denoise/tonemap
// kernels as compute work, it never issues draw calls.
func (d *Driver) NewPipeline(state *driver.CompState) (driver.Pipeline, error) {
	p := &pipeline{d: d}
	if state.Desc == nil {
		// Unlikely for compute, since the shader would have
		// no resource to read from nor write to, but handled
		// the same way as a valid descriptor table so that a
		// pipeline layout is always available.
		desc, err := d.NewDescTable(nil)
		if err != nil {
			return nil, err
		}
		defer desc.Destroy()
		p.layout = desc.(*descTable).layout
	} else {
		p.layout = state.Desc.(*descTable).layout
	}
	info := C.VkComputePipelineCreateInfo{
		sType: C.VK_STRUCTURE_TYPE_COMPUTE_PIPELINE_CREATE_INFO,
		stage: C.VkPipelineShaderStageCreateInfo{
			sType:  C.VK_STRUCTURE_TYPE_PIPELINE_SHADER_STAGE_CREATE_INFO,
			stage:  C.VK_SHADER_STAGE_COMPUTE_BIT,
			module: state.Func.Code.(*shaderCode).mod,
			pName:  C.CString(state.Func.Name),
		},
		layout:            p.layout,
		basePipelineIndex: -1,
	}
	defer C.free(unsafe.Pointer(info.stage.pName))
	// TODO: Pipeline cache.
	var cache C.VkPipelineCache
	err := checkResult(C.vkCreateComputePipelines(d.dev, cache, 1, &info, nil, &p.pl))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Destroy destroys the pipeline.
func (p *pipeline) Destroy() {
	if p == nil {
		return
	}
	if p.d != nil {
		C.vkDestroyPipeline(p.d.dev, p.pl, nil)
	}
	*p = pipeline{}
}
