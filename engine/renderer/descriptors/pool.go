package descriptors

import (
	"fmt"

	"github.com/spaghettifunk/talos/engine/core"
	"github.com/spaghettifunk/talos/engine/renderer/metadata"
)

/** @brief How many descriptors of one type the pool reserves. */
type PoolSize struct {
	Type  metadata.DescriptorType
	Count uint32
}

/** @brief The configuration for a descriptor pool. */
type DescriptorPoolConfig struct {
	/** @brief The total number of binding-set instances the pool can have live. */
	MaxSets uint32
	/** @brief Capacity requests per descriptor type; repeated types accumulate. */
	PoolSizes []PoolSize
	/**
	 * @brief Whether individual sets can be freed back to the pool. When
	 * false every channel uses bump allocation and space only comes back at
	 * pool teardown; when true the channels pay free-list bookkeeping for
	 * fine-grained reuse. Fixed for the pool's lifetime.
	 */
	AllowFreeSets bool
	/**
	 * @brief Capacity of the mutable-sampler shadow channel. Zero mirrors
	 * the combined-image-sampler capacity.
	 */
	MutableSamplerCount uint32
}

/**
 * @brief Host-side bookkeeping for descriptor storage. The pool carves
 * per-channel offset ranges for every set it materializes and owns the typed
 * storage arrays the handles live in. It performs no device work; pushing
 * handles to the device is the backend writer's job.
 *
 * Pools are not internally synchronized. Callers that share one across
 * goroutines must serialize access themselves.
 */
type DescriptorPool struct {
	maxSets   uint32
	allowFree bool
	liveSets  uint32

	maxCount   [metadata.DescriptorChannelCount]uint32
	allocators [metadata.DescriptorChannelCount]*addressAllocator
	// Base of each channel's region inside its (possibly shared) storage array.
	storageBase [metadata.DescriptorChannelCount]uint32

	// Channels with identical handle types share one array, the same space
	// optimization the pool sizing is derived from.
	textureStorage               *storage[metadata.ImageViewHandle]
	mutableSamplerStorage        *storage[metadata.SamplerHandle]
	storageImageStorage          *storage[metadata.ImageViewHandle] // storage image | input attachment
	bufferStorage                *storage[metadata.BufferHandle]    // ubo | ssbo | ubo dynamic | ssbo dynamic
	texelBufferStorage           *storage[metadata.BufferViewHandle]
	accelerationStructureStorage *storage[metadata.AccelerationStructureHandle]

	sets map[*DescriptorSet]struct{}
}

func NewDescriptorPool(config *DescriptorPoolConfig) (*DescriptorPool, error) {
	if config.MaxSets == 0 {
		err := fmt.Errorf("NewDescriptorPool - config.MaxSets must be greater than 0")
		core.LogError(err.Error())
		return nil, err
	}

	pool := &DescriptorPool{
		maxSets:   config.MaxSets,
		allowFree: config.AllowFreeSets,
		sets:      make(map[*DescriptorSet]struct{}),
	}

	for _, ps := range config.PoolSizes {
		if ps.Type >= metadata.DescriptorTypeCount {
			err := fmt.Errorf("NewDescriptorPool - unknown descriptor type %d", ps.Type)
			core.LogError(err.Error())
			return nil, err
		}
		pool.maxCount[ps.Type] += ps.Count
	}
	// The shadow channel either mirrors the combined-image-sampler capacity
	// or tracks its own explicitly configured budget.
	pool.maxCount[metadata.DescriptorTypeMutableSampler] = pool.maxCount[metadata.DescriptorTypeCombinedImageSampler]
	if config.MutableSamplerCount > 0 {
		pool.maxCount[metadata.DescriptorTypeMutableSampler] = config.MutableSamplerCount
	}

	for ch := range pool.allocators {
		pool.allocators[ch] = newAddressAllocator(pool.maxCount[ch], pool.allowFree)
	}

	pool.textureStorage = newStorage[metadata.ImageViewHandle](pool.maxCount[metadata.DescriptorTypeCombinedImageSampler])
	pool.mutableSamplerStorage = newStorage[metadata.SamplerHandle](pool.maxCount[metadata.DescriptorTypeMutableSampler])
	pool.storageImageStorage = newStorage[metadata.ImageViewHandle](pool.maxCount[metadata.DescriptorTypeStorageImage] + pool.maxCount[metadata.DescriptorTypeInputAttachment])
	pool.bufferStorage = newStorage[metadata.BufferHandle](pool.maxCount[metadata.DescriptorTypeUniformBuffer] + pool.maxCount[metadata.DescriptorTypeStorageBuffer] + pool.maxCount[metadata.DescriptorTypeUniformBufferDynamic] + pool.maxCount[metadata.DescriptorTypeStorageBufferDynamic])
	pool.texelBufferStorage = newStorage[metadata.BufferViewHandle](pool.maxCount[metadata.DescriptorTypeUniformTexelBuffer] + pool.maxCount[metadata.DescriptorTypeStorageTexelBuffer])
	pool.accelerationStructureStorage = newStorage[metadata.AccelerationStructureHandle](pool.maxCount[metadata.DescriptorTypeAccelerationStructure])

	// Second channel of a shared array starts where the first one ends.
	pool.storageBase[metadata.DescriptorTypeInputAttachment] = pool.maxCount[metadata.DescriptorTypeStorageImage]
	pool.storageBase[metadata.DescriptorTypeStorageBuffer] = pool.maxCount[metadata.DescriptorTypeUniformBuffer]
	pool.storageBase[metadata.DescriptorTypeUniformBufferDynamic] = pool.storageBase[metadata.DescriptorTypeStorageBuffer] + pool.maxCount[metadata.DescriptorTypeStorageBuffer]
	pool.storageBase[metadata.DescriptorTypeStorageBufferDynamic] = pool.storageBase[metadata.DescriptorTypeUniformBufferDynamic] + pool.maxCount[metadata.DescriptorTypeUniformBufferDynamic]
	pool.storageBase[metadata.DescriptorTypeStorageTexelBuffer] = pool.maxCount[metadata.DescriptorTypeUniformTexelBuffer]

	return pool, nil
}

/** @brief Capacity returns the total number of sets the pool can have live. */
func (p *DescriptorPool) Capacity() uint32 {
	return p.maxSets
}

/** @brief MaxDescriptors returns the reserved capacity of one channel. */
func (p *DescriptorPool) MaxDescriptors(t metadata.DescriptorType) uint32 {
	if uint32(t) >= metadata.DescriptorChannelCount {
		return 0
	}
	return p.maxCount[t]
}

/** @brief RemainingDescriptors returns how many slots of one channel are still free. */
func (p *DescriptorPool) RemainingDescriptors(t metadata.DescriptorType) uint32 {
	if uint32(t) >= metadata.DescriptorChannelCount {
		return 0
	}
	return p.maxCount[t] - p.allocators[t].Allocated()
}

/**
 * @brief CreateSets materializes one binding-set instance per layout. The
 * whole batch is all-or-nothing: when any channel of any layout cannot be
 * satisfied, every offset already carved in this call is rolled back before
 * the error is returned.
 */
func (p *DescriptorPool) CreateSets(layouts []*metadata.DescriptorSetLayout) ([]*DescriptorSet, error) {
	if len(layouts) == 0 {
		return nil, nil
	}
	if p.liveSets+uint32(len(layouts)) > p.maxSets {
		err := fmt.Errorf("pool holds %d of %d sets, cannot create %d more: %w", p.liveSets, p.maxSets, len(layouts), core.ErrCapacityExhausted)
		core.LogError(err.Error())
		return nil, err
	}

	offsets := make([]descriptorOffsets, 0, len(layouts))
	for i, layout := range layouts {
		offs, err := p.allocateOffsets(layout)
		if err != nil {
			// Undo the sets that did fit, newest first so the linear
			// allocators can rewind.
			for j := len(offsets) - 1; j >= 0; j-- {
				p.rollbackOffsets(layouts[j], offsets[j])
			}
			return nil, fmt.Errorf("set %d of %d: %w", i, len(layouts), err)
		}
		offsets = append(offsets, offs)
	}

	sets := make([]*DescriptorSet, len(layouts))
	for i, layout := range layouts {
		counts := layout.DescriptorCounts()
		for ch := uint32(0); ch < metadata.DescriptorChannelCount; ch++ {
			if offsets[i][ch] != InvalidOffset {
				p.constructRange(ch, offsets[i][ch], counts[ch])
			}
		}
		sets[i] = &DescriptorSet{
			pool:    p,
			layout:  layout,
			offsets: offsets[i],
		}
		p.sets[sets[i]] = struct{}{}
		p.liveSets++
	}
	return sets, nil
}

/** @brief CreateSet materializes a single set; a convenience over CreateSets. */
func (p *DescriptorPool) CreateSet(layout *metadata.DescriptorSetLayout) (*DescriptorSet, error) {
	sets, err := p.CreateSets([]*metadata.DescriptorSetLayout{layout})
	if err != nil {
		return nil, err
	}
	return sets[0], nil
}

// allocateOffsets carves one contiguous range per channel the layout needs.
// Allocating a channel's total in one call keeps a set's descriptors
// contiguous; per-binding calls could fragment a free list and fail even
// when aggregate capacity exists.
func (p *DescriptorPool) allocateOffsets(layout *metadata.DescriptorSetLayout) (descriptorOffsets, error) {
	counts := layout.DescriptorCounts()
	offs := newDescriptorOffsets()

	rollback := func(upto uint32) {
		for ch := int32(upto) - 1; ch >= 0; ch-- {
			if offs[ch] != InvalidOffset {
				p.allocators[ch].rollback(offs[ch], counts[ch])
				offs[ch] = InvalidOffset
			}
		}
	}

	for ch := uint32(0); ch < metadata.DescriptorChannelCount; ch++ {
		if counts[ch] == 0 {
			continue
		}
		if p.maxCount[ch] == 0 {
			rollback(ch)
			err := fmt.Errorf("layout needs %d %s descriptors: %w", counts[ch], metadata.DescriptorType(ch), core.ErrLayoutMismatch)
			core.LogError(err.Error())
			return offs, err
		}
		offset, err := p.allocators[ch].Allocate(counts[ch])
		if err != nil {
			rollback(ch)
			return offs, fmt.Errorf("%s channel: %w", metadata.DescriptorType(ch), err)
		}
		offs[ch] = offset
	}
	return offs, nil
}

// rollbackOffsets undoes a fully allocated offset table, highest channel
// first to keep linear-mode rewinds tail-aligned.
func (p *DescriptorPool) rollbackOffsets(layout *metadata.DescriptorSetLayout, offs descriptorOffsets) {
	counts := layout.DescriptorCounts()
	for ch := int32(metadata.DescriptorChannelCount) - 1; ch >= 0; ch-- {
		if offs[ch] != InvalidOffset {
			p.allocators[ch].rollback(offs[ch], counts[ch])
		}
	}
}

/**
 * @brief FreeSets destructs the handles of each set and returns its offset
 * ranges to the channel allocators. Only legal on pools created with
 * AllowFreeSets; freeing from a bump-allocated pool would corrupt state, so
 * it fails loudly instead.
 */
func (p *DescriptorPool) FreeSets(sets []*DescriptorSet) error {
	if !p.allowFree {
		err := fmt.Errorf("FreeSets on a pool created without AllowFreeSets: %w", core.ErrInvalidOperation)
		core.LogError(err.Error())
		return err
	}
	for _, s := range sets {
		if s == nil || s.pool != p {
			err := fmt.Errorf("FreeSets of a set not owned by this pool: %w", core.ErrInvalidOperation)
			core.LogError(err.Error())
			return err
		}
		if s.freed {
			err := fmt.Errorf("double free of descriptor set: %w", core.ErrInvalidOperation)
			core.LogError(err.Error())
			return err
		}
	}

	for _, s := range sets {
		counts := s.layout.DescriptorCounts()
		for ch := uint32(0); ch < metadata.DescriptorChannelCount; ch++ {
			if s.offsets[ch] == InvalidOffset {
				continue
			}
			p.destroyRange(ch, s.offsets[ch], counts[ch])
			if err := p.allocators[ch].Free(s.offsets[ch], counts[ch]); err != nil {
				return err
			}
		}
		s.freed = true
		delete(p.sets, s)
		p.liveSets--
	}
	return nil
}

/**
 * @brief Destroy tears the pool down, destructing the handles of every set
 * still live. Works regardless of the freeing mode; after this every set the
 * pool ever produced is dead.
 */
func (p *DescriptorPool) Destroy() {
	for s := range p.sets {
		counts := s.layout.DescriptorCounts()
		for ch := uint32(0); ch < metadata.DescriptorChannelCount; ch++ {
			if s.offsets[ch] != InvalidOffset {
				p.destroyRange(ch, s.offsets[ch], counts[ch])
			}
		}
		s.freed = true
		delete(p.sets, s)
	}
	p.liveSets = 0
}

/**
 * @brief UpdateSets bulk-writes resource handles into the pool's storage at
 * the offsets the set's table points to. Host-side only; the device-visible
 * write is the backend writer's separate, explicit step.
 */
func (p *DescriptorPool) UpdateSets(set *DescriptorSet, writes []metadata.DescriptorWrite) error {
	if set == nil || set.pool != p || set.freed {
		err := fmt.Errorf("update of a set that is not live in this pool: %w", core.ErrInvalidOperation)
		core.LogError(err.Error())
		return err
	}

	for wi := range writes {
		w := &writes[wi]
		binding, err := set.findBinding(w.Binding)
		if err != nil {
			return err
		}
		if binding.Type != w.Type {
			err := fmt.Errorf("write of %s to binding %d declared as %s: %w", w.Type, w.Binding, binding.Type, core.ErrLayoutMismatch)
			core.LogError(err.Error())
			return err
		}
		if uint64(w.ArrayElement)+uint64(len(w.Infos)) > uint64(binding.Count) {
			err := fmt.Errorf("write of %d descriptors at element %d overflows binding %d (count %d): %w", len(w.Infos), w.ArrayElement, w.Binding, binding.Count, core.ErrInvalidOperation)
			core.LogError(err.Error())
			return err
		}

		base := set.offsets[w.Type] + set.bindingBase(binding) + w.ArrayElement
		for i := range w.Infos {
			if err := p.writeDescriptor(w.Type, base+uint32(i), &w.Infos[i]); err != nil {
				return err
			}
		}
		if w.Type == metadata.DescriptorTypeCombinedImageSampler && len(binding.ImmutableSamplers) == 0 {
			samplerBase := set.offsets[metadata.DescriptorTypeMutableSampler] + set.mutableSamplerBase(binding) + w.ArrayElement
			for i := range w.Infos {
				if err := p.mutableSamplerStorage.set(samplerBase+uint32(i), w.Infos[i].Sampler); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (p *DescriptorPool) writeDescriptor(t metadata.DescriptorType, offset uint32, info *metadata.DescriptorInfo) error {
	switch t {
	case metadata.DescriptorTypeCombinedImageSampler:
		return p.textureStorage.set(offset, info.ImageView)
	case metadata.DescriptorTypeStorageImage, metadata.DescriptorTypeInputAttachment:
		return p.storageImageStorage.set(p.storageBase[t]+offset, info.ImageView)
	case metadata.DescriptorTypeUniformBuffer, metadata.DescriptorTypeStorageBuffer,
		metadata.DescriptorTypeUniformBufferDynamic, metadata.DescriptorTypeStorageBufferDynamic:
		return p.bufferStorage.set(p.storageBase[t]+offset, info.Buffer)
	case metadata.DescriptorTypeUniformTexelBuffer, metadata.DescriptorTypeStorageTexelBuffer:
		return p.texelBufferStorage.set(p.storageBase[t]+offset, info.BufferView)
	case metadata.DescriptorTypeAccelerationStructure:
		return p.accelerationStructureStorage.set(offset, info.AccelerationStructure)
	}
	return fmt.Errorf("write of unknown descriptor type %d: %w", t, core.ErrInvalidOperation)
}

func (p *DescriptorPool) descriptorAt(set *DescriptorSet, bindingIndex, element uint32) (metadata.DescriptorInfo, error) {
	var info metadata.DescriptorInfo
	if set == nil || set.pool != p || set.freed {
		return info, fmt.Errorf("read of a set that is not live in this pool: %w", core.ErrInvalidOperation)
	}
	binding, err := set.findBinding(bindingIndex)
	if err != nil {
		return info, err
	}
	if element >= binding.Count {
		return info, fmt.Errorf("element %d out of range for binding %d (count %d): %w", element, bindingIndex, binding.Count, core.ErrInvalidOperation)
	}

	offset := set.offsets[binding.Type] + set.bindingBase(binding) + element
	switch binding.Type {
	case metadata.DescriptorTypeCombinedImageSampler:
		info.ImageView, err = p.textureStorage.get(offset)
		if err == nil && len(binding.ImmutableSamplers) == 0 {
			samplerOffset := set.offsets[metadata.DescriptorTypeMutableSampler] + set.mutableSamplerBase(binding) + element
			info.Sampler, err = p.mutableSamplerStorage.get(samplerOffset)
		}
	case metadata.DescriptorTypeStorageImage, metadata.DescriptorTypeInputAttachment:
		info.ImageView, err = p.storageImageStorage.get(p.storageBase[binding.Type] + offset)
	case metadata.DescriptorTypeUniformBuffer, metadata.DescriptorTypeStorageBuffer,
		metadata.DescriptorTypeUniformBufferDynamic, metadata.DescriptorTypeStorageBufferDynamic:
		info.Buffer, err = p.bufferStorage.get(p.storageBase[binding.Type] + offset)
	case metadata.DescriptorTypeUniformTexelBuffer, metadata.DescriptorTypeStorageTexelBuffer:
		info.BufferView, err = p.texelBufferStorage.get(p.storageBase[binding.Type] + offset)
	case metadata.DescriptorTypeAccelerationStructure:
		info.AccelerationStructure, err = p.accelerationStructureStorage.get(offset)
	}
	return info, err
}

func (p *DescriptorPool) constructRange(ch, offset, count uint32) {
	t := metadata.DescriptorType(ch)
	switch t {
	case metadata.DescriptorTypeCombinedImageSampler:
		p.textureStorage.construct(offset, count)
	case metadata.DescriptorTypeMutableSampler:
		p.mutableSamplerStorage.construct(offset, count)
	case metadata.DescriptorTypeStorageImage, metadata.DescriptorTypeInputAttachment:
		p.storageImageStorage.construct(p.storageBase[t]+offset, count)
	case metadata.DescriptorTypeUniformBuffer, metadata.DescriptorTypeStorageBuffer,
		metadata.DescriptorTypeUniformBufferDynamic, metadata.DescriptorTypeStorageBufferDynamic:
		p.bufferStorage.construct(p.storageBase[t]+offset, count)
	case metadata.DescriptorTypeUniformTexelBuffer, metadata.DescriptorTypeStorageTexelBuffer:
		p.texelBufferStorage.construct(p.storageBase[t]+offset, count)
	case metadata.DescriptorTypeAccelerationStructure:
		p.accelerationStructureStorage.construct(offset, count)
	}
}

func (p *DescriptorPool) destroyRange(ch, offset, count uint32) {
	t := metadata.DescriptorType(ch)
	switch t {
	case metadata.DescriptorTypeCombinedImageSampler:
		p.textureStorage.destroy(offset, count)
	case metadata.DescriptorTypeMutableSampler:
		p.mutableSamplerStorage.destroy(offset, count)
	case metadata.DescriptorTypeStorageImage, metadata.DescriptorTypeInputAttachment:
		p.storageImageStorage.destroy(p.storageBase[t]+offset, count)
	case metadata.DescriptorTypeUniformBuffer, metadata.DescriptorTypeStorageBuffer,
		metadata.DescriptorTypeUniformBufferDynamic, metadata.DescriptorTypeStorageBufferDynamic:
		p.bufferStorage.destroy(p.storageBase[t]+offset, count)
	case metadata.DescriptorTypeUniformTexelBuffer, metadata.DescriptorTypeStorageTexelBuffer:
		p.texelBufferStorage.destroy(p.storageBase[t]+offset, count)
	case metadata.DescriptorTypeAccelerationStructure:
		p.accelerationStructureStorage.destroy(offset, count)
	}
}
