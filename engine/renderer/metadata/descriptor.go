package metadata

/** @brief The closed set of descriptor binding categories. */
type DescriptorType uint32

const (
	DescriptorTypeCombinedImageSampler DescriptorType = iota
	DescriptorTypeStorageImage
	DescriptorTypeUniformTexelBuffer
	DescriptorTypeStorageTexelBuffer
	DescriptorTypeUniformBuffer
	DescriptorTypeStorageBuffer
	DescriptorTypeUniformBufferDynamic
	DescriptorTypeStorageBufferDynamic
	DescriptorTypeInputAttachment
	DescriptorTypeAccelerationStructure
	/** @brief The number of real descriptor types. */
	DescriptorTypeCount
)

/**
 * @brief The shadow channel that tracks the samplers of combined-image-sampler
 * bindings declared without immutable samplers. It occupies the slot right
 * after the real types in every per-type table.
 */
const DescriptorTypeMutableSampler = DescriptorTypeCount

/** @brief Total number of per-type channels, shadow channel included. */
const DescriptorChannelCount = uint32(DescriptorTypeCount) + 1

func (t DescriptorType) String() string {
	switch t {
	case DescriptorTypeCombinedImageSampler:
		return "combined_image_sampler"
	case DescriptorTypeStorageImage:
		return "storage_image"
	case DescriptorTypeUniformTexelBuffer:
		return "uniform_texel_buffer"
	case DescriptorTypeStorageTexelBuffer:
		return "storage_texel_buffer"
	case DescriptorTypeUniformBuffer:
		return "uniform_buffer"
	case DescriptorTypeStorageBuffer:
		return "storage_buffer"
	case DescriptorTypeUniformBufferDynamic:
		return "uniform_buffer_dynamic"
	case DescriptorTypeStorageBufferDynamic:
		return "storage_buffer_dynamic"
	case DescriptorTypeInputAttachment:
		return "input_attachment"
	case DescriptorTypeAccelerationStructure:
		return "acceleration_structure"
	case DescriptorTypeMutableSampler:
		return "mutable_sampler"
	}
	return "unknown"
}

/**
 * @brief Opaque device-layer handles. The pool never creates or interprets
 * these, it only stores and releases them; the device backend supplies the
 * concrete implementations.
 */
type ImageViewHandle interface {
	ImageView()
}

type SamplerHandle interface {
	Sampler()
}

type BufferHandle interface {
	Buffer()
}

type BufferViewHandle interface {
	BufferView()
}

type AccelerationStructureHandle interface {
	AccelerationStructure()
}

/**
 * @brief A value recorded against a unit of submitted device work. Done
 * reports whether the device has finished that work. It must never block;
 * blocking waits belong to the device layer.
 */
type CompletionToken interface {
	Done() bool
}

/** @brief A single binding declaration within a set layout. */
type DescriptorSetLayoutBinding struct {
	/** @brief The binding index within the set. */
	Binding uint32
	/** @brief The descriptor type of this binding. */
	Type DescriptorType
	/** @brief The number of array elements in this binding. */
	Count uint32
	/**
	 * @brief Samplers baked into the layout, for combined-image-sampler
	 * bindings only. Empty means the samplers are mutable: they are written
	 * at update time and consume the mutable-sampler shadow channel.
	 */
	ImmutableSamplers []SamplerHandle
}

/** @brief A binding-set layout: the bindings a set materialized from it carries. */
type DescriptorSetLayout struct {
	Bindings []DescriptorSetLayoutBinding
}

/**
 * @brief DescriptorCounts accumulates the number of descriptors the layout
 * requires per channel, shadow channel included.
 */
func (l *DescriptorSetLayout) DescriptorCounts() [DescriptorChannelCount]uint32 {
	var counts [DescriptorChannelCount]uint32
	for i := range l.Bindings {
		b := &l.Bindings[i]
		counts[b.Type] += b.Count
		if b.Type == DescriptorTypeCombinedImageSampler && len(b.ImmutableSamplers) == 0 {
			counts[DescriptorTypeMutableSampler] += b.Count
		}
	}
	return counts
}

/** @brief One descriptor to be written; which field is set depends on the write's type. */
type DescriptorInfo struct {
	ImageView             ImageViewHandle
	Sampler               SamplerHandle
	Buffer                BufferHandle
	BufferView            BufferViewHandle
	AccelerationStructure AccelerationStructureHandle
}

/**
 * @brief A bulk-update record: Infos[i] lands in array element
 * ArrayElement+i of the target binding.
 */
type DescriptorWrite struct {
	Binding      uint32
	ArrayElement uint32
	Type         DescriptorType
	Infos        []DescriptorInfo
}
