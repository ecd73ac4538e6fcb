package descriptors

import (
	"fmt"

	"github.com/spaghettifunk/talos/engine/core"
	"github.com/spaghettifunk/talos/engine/renderer/metadata"
)

/**
 * @brief Per-set record of where each channel's descriptors start inside the
 * pool's storage. Channels the set's layout never touches stay at
 * InvalidOffset so teardown knows to skip them.
 */
type descriptorOffsets [metadata.DescriptorChannelCount]uint32

func newDescriptorOffsets() descriptorOffsets {
	var o descriptorOffsets
	for i := range o {
		o[i] = InvalidOffset
	}
	return o
}

/**
 * @brief A live binding-set instance materialized by a pool. The set itself
 * is only an offset table plus its layout; the handles live in the pool's
 * typed storage.
 */
type DescriptorSet struct {
	pool    *DescriptorPool
	layout  *metadata.DescriptorSetLayout
	offsets descriptorOffsets
	freed   bool
}

func (s *DescriptorSet) Layout() *metadata.DescriptorSetLayout {
	return s.layout
}

/** @brief IsLive reports whether the set has not been freed yet. */
func (s *DescriptorSet) IsLive() bool {
	return !s.freed
}

/** @brief Update bulk-writes handles into the owning pool's storage. */
func (s *DescriptorSet) Update(writes []metadata.DescriptorWrite) error {
	return s.pool.UpdateSets(s, writes)
}

/**
 * @brief DescriptorAt reads back the handle stored for one array element of
 * a binding. Only the field matching the binding's type is populated.
 */
func (s *DescriptorSet) DescriptorAt(binding, element uint32) (metadata.DescriptorInfo, error) {
	return s.pool.descriptorAt(s, binding, element)
}

// findBinding locates a binding declaration by its binding index.
func (s *DescriptorSet) findBinding(binding uint32) (*metadata.DescriptorSetLayoutBinding, error) {
	for i := range s.layout.Bindings {
		if s.layout.Bindings[i].Binding == binding {
			return &s.layout.Bindings[i], nil
		}
	}
	return nil, fmt.Errorf("layout has no binding %d: %w", binding, core.ErrLayoutMismatch)
}

// bindingBase returns the offset of a binding's first array element within
// the set's allocated range for the binding's own channel. Bindings of one
// channel are packed in declaration order.
func (s *DescriptorSet) bindingBase(target *metadata.DescriptorSetLayoutBinding) uint32 {
	var base uint32
	for i := range s.layout.Bindings {
		b := &s.layout.Bindings[i]
		if b == target {
			break
		}
		if b.Type == target.Type {
			base += b.Count
		}
	}
	return base
}

// mutableSamplerBase is bindingBase for the shadow channel: only
// combined-image-sampler bindings without immutable samplers occupy it.
func (s *DescriptorSet) mutableSamplerBase(target *metadata.DescriptorSetLayoutBinding) uint32 {
	var base uint32
	for i := range s.layout.Bindings {
		b := &s.layout.Bindings[i]
		if b == target {
			break
		}
		if b.Type == metadata.DescriptorTypeCombinedImageSampler && len(b.ImmutableSamplers) == 0 {
			base += b.Count
		}
	}
	return base
}
