package vulkan

import (
	vk "github.com/goki/vulkan"
)

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device
}

/**
 * @brief The slice of device state the descriptor backend needs. Instance
 * and device creation live with the application; this package only consumes
 * the handles.
 */
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Device    *VulkanDevice
}
