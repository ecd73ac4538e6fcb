package vulkan

import (
	vk "github.com/goki/vulkan"
)

// Thin identities over raw Vulkan handles, satisfying the handle interfaces
// the descriptor pool stores. The pool holds on to these; lifetime of the
// underlying Vulkan objects stays with whoever created them.

type ImageView struct {
	Handle vk.ImageView
	Layout vk.ImageLayout
}

func (v *ImageView) ImageView() {}

type Sampler struct {
	Handle vk.Sampler
}

func (s *Sampler) Sampler() {}

type Buffer struct {
	Handle vk.Buffer
	Offset vk.DeviceSize
	/** @brief Size of the bound range; vk.WholeSize binds to the end. */
	Range vk.DeviceSize
}

func (b *Buffer) Buffer() {}

type BufferView struct {
	Handle vk.BufferView
}

func (bv *BufferView) BufferView() {}
