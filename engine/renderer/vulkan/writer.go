package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/talos/engine/core"
	"github.com/spaghettifunk/talos/engine/renderer/metadata"
)

/**
 * @brief Pushes host-side descriptor writes to the device. The pool keeps
 * its storage purely host-side; this is the separate, explicit step that
 * makes the handles visible to shaders.
 */
type DescriptorWriter struct {
	context *VulkanContext
}

func NewDescriptorWriter(context *VulkanContext) *DescriptorWriter {
	return &DescriptorWriter{context: context}
}

func (w *DescriptorWriter) WriteSet(dstSet vk.DescriptorSet, writes []metadata.DescriptorWrite) error {
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for wi := range writes {
		write := &writes[wi]
		if write.Type == metadata.DescriptorTypeAccelerationStructure {
			// The wrapper does not model the PNext chain these writes need.
			err := fmt.Errorf("WriteSet - acceleration structure writes are not supported by this backend")
			core.LogError(err.Error())
			return err
		}
		vkType, err := descriptorTypeToVulkan(write.Type)
		if err != nil {
			core.LogError(err.Error())
			return err
		}

		vkWrite := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          dstSet,
			DstBinding:      write.Binding,
			DstArrayElement: write.ArrayElement,
			DescriptorCount: uint32(len(write.Infos)),
			DescriptorType:  vkType,
		}

		switch write.Type {
		case metadata.DescriptorTypeCombinedImageSampler, metadata.DescriptorTypeStorageImage, metadata.DescriptorTypeInputAttachment:
			imageInfos := make([]vk.DescriptorImageInfo, len(write.Infos))
			for i, info := range write.Infos {
				view, ok := info.ImageView.(*ImageView)
				if !ok {
					return fmt.Errorf("WriteSet - binding %d carries a non-Vulkan image view", write.Binding)
				}
				imageInfos[i] = vk.DescriptorImageInfo{
					ImageView:   view.Handle,
					ImageLayout: view.Layout,
				}
				if sampler, ok := info.Sampler.(*Sampler); ok {
					imageInfos[i].Sampler = sampler.Handle
				}
			}
			vkWrite.PImageInfo = imageInfos
		case metadata.DescriptorTypeUniformBuffer, metadata.DescriptorTypeStorageBuffer,
			metadata.DescriptorTypeUniformBufferDynamic, metadata.DescriptorTypeStorageBufferDynamic:
			bufferInfos := make([]vk.DescriptorBufferInfo, len(write.Infos))
			for i, info := range write.Infos {
				buffer, ok := info.Buffer.(*Buffer)
				if !ok {
					return fmt.Errorf("WriteSet - binding %d carries a non-Vulkan buffer", write.Binding)
				}
				bufferInfos[i] = vk.DescriptorBufferInfo{
					Buffer: buffer.Handle,
					Offset: buffer.Offset,
					Range:  buffer.Range,
				}
			}
			vkWrite.PBufferInfo = bufferInfos
		case metadata.DescriptorTypeUniformTexelBuffer, metadata.DescriptorTypeStorageTexelBuffer:
			views := make([]vk.BufferView, len(write.Infos))
			for i, info := range write.Infos {
				view, ok := info.BufferView.(*BufferView)
				if !ok {
					return fmt.Errorf("WriteSet - binding %d carries a non-Vulkan buffer view", write.Binding)
				}
				views[i] = view.Handle
			}
			vkWrite.PTexelBufferView = views
		}

		vkWrites = append(vkWrites, vkWrite)
	}

	vk.UpdateDescriptorSets(w.context.Device.LogicalDevice, uint32(len(vkWrites)), vkWrites, 0, nil)
	return nil
}

func descriptorTypeToVulkan(t metadata.DescriptorType) (vk.DescriptorType, error) {
	switch t {
	case metadata.DescriptorTypeCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler, nil
	case metadata.DescriptorTypeStorageImage:
		return vk.DescriptorTypeStorageImage, nil
	case metadata.DescriptorTypeUniformTexelBuffer:
		return vk.DescriptorTypeUniformTexelBuffer, nil
	case metadata.DescriptorTypeStorageTexelBuffer:
		return vk.DescriptorTypeStorageTexelBuffer, nil
	case metadata.DescriptorTypeUniformBuffer:
		return vk.DescriptorTypeUniformBuffer, nil
	case metadata.DescriptorTypeStorageBuffer:
		return vk.DescriptorTypeStorageBuffer, nil
	case metadata.DescriptorTypeUniformBufferDynamic:
		return vk.DescriptorTypeUniformBufferDynamic, nil
	case metadata.DescriptorTypeStorageBufferDynamic:
		return vk.DescriptorTypeStorageBufferDynamic, nil
	case metadata.DescriptorTypeInputAttachment:
		return vk.DescriptorTypeInputAttachment, nil
	}
	return 0, fmt.Errorf("no Vulkan descriptor type for %s", t)
}
