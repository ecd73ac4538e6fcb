package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/talos/engine/core"
	"github.com/spaghettifunk/talos/engine/renderer/descriptors"
	"github.com/spaghettifunk/talos/engine/renderer/metadata"
)

/** @brief One capacity request inside a profile. */
type PoolSizeProfile struct {
	Type  string `toml:"type"`
	Count uint32 `toml:"count"`
}

/**
 * @brief A descriptor sizing profile, loaded from TOML. It captures
 * everything needed to build a pool and its set cache:
 *
 *	max_sets = 64
 *	allow_free_sets = true
 *	cache_size = 32
 *
 *	[[pool_sizes]]
 *	type = "uniform_buffer"
 *	count = 128
 */
type DescriptorPoolProfile struct {
	MaxSets             uint32            `toml:"max_sets"`
	AllowFreeSets       bool              `toml:"allow_free_sets"`
	MutableSamplerCount uint32            `toml:"mutable_sampler_count"`
	CacheSize           uint32            `toml:"cache_size"`
	PoolSizes           []PoolSizeProfile `toml:"pool_sizes"`
}

var descriptorTypeNames = map[string]metadata.DescriptorType{
	"combined_image_sampler": metadata.DescriptorTypeCombinedImageSampler,
	"storage_image":          metadata.DescriptorTypeStorageImage,
	"uniform_texel_buffer":   metadata.DescriptorTypeUniformTexelBuffer,
	"storage_texel_buffer":   metadata.DescriptorTypeStorageTexelBuffer,
	"uniform_buffer":         metadata.DescriptorTypeUniformBuffer,
	"storage_buffer":         metadata.DescriptorTypeStorageBuffer,
	"uniform_buffer_dynamic": metadata.DescriptorTypeUniformBufferDynamic,
	"storage_buffer_dynamic": metadata.DescriptorTypeStorageBufferDynamic,
	"input_attachment":       metadata.DescriptorTypeInputAttachment,
	"acceleration_structure": metadata.DescriptorTypeAccelerationStructure,
}

/** @brief LoadProfile reads and validates a profile from a TOML file. */
func LoadProfile(path string) (*DescriptorPoolProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		core.LogError("LoadProfile - cannot read %s: %s", path, err.Error())
		return nil, err
	}
	return ParseProfile(data)
}

/** @brief ParseProfile decodes and validates a profile from TOML bytes. */
func ParseProfile(data []byte) (*DescriptorPoolProfile, error) {
	profile := &DescriptorPoolProfile{}
	if err := toml.Unmarshal(data, profile); err != nil {
		core.LogError("ParseProfile - invalid TOML: %s", err.Error())
		return nil, err
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

func (p *DescriptorPoolProfile) Validate() error {
	if p.MaxSets == 0 {
		err := fmt.Errorf("profile max_sets must be greater than 0")
		core.LogError(err.Error())
		return err
	}
	for _, ps := range p.PoolSizes {
		if _, ok := descriptorTypeNames[ps.Type]; !ok {
			err := fmt.Errorf("profile references unknown descriptor type %q", ps.Type)
			core.LogError(err.Error())
			return err
		}
		if ps.Count == 0 {
			err := fmt.Errorf("profile reserves zero %q descriptors; drop the entry instead", ps.Type)
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

/** @brief PoolConfig translates the profile into a pool configuration. */
func (p *DescriptorPoolProfile) PoolConfig() (*descriptors.DescriptorPoolConfig, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	config := &descriptors.DescriptorPoolConfig{
		MaxSets:             p.MaxSets,
		AllowFreeSets:       p.AllowFreeSets,
		MutableSamplerCount: p.MutableSamplerCount,
		PoolSizes:           make([]descriptors.PoolSize, 0, len(p.PoolSizes)),
	}
	for _, ps := range p.PoolSizes {
		config.PoolSizes = append(config.PoolSizes, descriptors.PoolSize{
			Type:  descriptorTypeNames[ps.Type],
			Count: ps.Count,
		})
	}
	return config, nil
}
