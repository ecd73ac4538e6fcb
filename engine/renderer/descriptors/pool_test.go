package descriptors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/talos/engine/core"
	"github.com/spaghettifunk/talos/engine/renderer/metadata"
)

func TestPoolRoundTrip(t *testing.T) {
	pool, err := NewDescriptorPool(&DescriptorPoolConfig{
		MaxSets: 4,
		PoolSizes: []PoolSize{
			{Type: metadata.DescriptorTypeCombinedImageSampler, Count: 4},
			{Type: metadata.DescriptorTypeUniformBuffer, Count: 4},
		},
		AllowFreeSets: true,
	})
	require.NoError(t, err)

	layout := &metadata.DescriptorSetLayout{
		Bindings: []metadata.DescriptorSetLayoutBinding{
			{Binding: 0, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 2},
			{Binding: 1, Type: metadata.DescriptorTypeUniformBuffer, Count: 1},
		},
	}
	set, err := pool.CreateSet(layout)
	require.NoError(t, err)

	albedo := &fakeImageView{name: "albedo"}
	normal := &fakeImageView{name: "normal"}
	linearSampler := &fakeSampler{name: "linear"}
	nearestSampler := &fakeSampler{name: "nearest"}
	globals := &fakeBuffer{name: "globals"}

	require.NoError(t, set.Update([]metadata.DescriptorWrite{
		{
			Binding: 0, Type: metadata.DescriptorTypeCombinedImageSampler,
			Infos: []metadata.DescriptorInfo{
				{ImageView: albedo, Sampler: linearSampler},
				{ImageView: normal, Sampler: nearestSampler},
			},
		},
		{
			Binding: 1, Type: metadata.DescriptorTypeUniformBuffer,
			Infos: []metadata.DescriptorInfo{{Buffer: globals}},
		},
	}))

	info, err := set.DescriptorAt(0, 0)
	require.NoError(t, err)
	assert.Same(t, albedo, info.ImageView)
	assert.Same(t, linearSampler, info.Sampler)

	info, err = set.DescriptorAt(0, 1)
	require.NoError(t, err)
	assert.Same(t, normal, info.ImageView)
	assert.Same(t, nearestSampler, info.Sampler)

	info, err = set.DescriptorAt(1, 0)
	require.NoError(t, err)
	assert.Same(t, globals, info.Buffer)

	// After a free the offsets are dead and reads must report no live handle.
	require.NoError(t, pool.FreeSets([]*DescriptorSet{set}))
	assert.False(t, set.IsLive())
	_, err = set.DescriptorAt(0, 0)
	assert.ErrorIs(t, err, core.ErrInvalidOperation)

	// The freed range is reusable.
	assert.Equal(t, uint32(4), pool.RemainingDescriptors(metadata.DescriptorTypeCombinedImageSampler))
	_, err = pool.CreateSet(layout)
	require.NoError(t, err)
}

func TestPoolBatchRollbackOnExhaustion(t *testing.T) {
	pool, err := NewDescriptorPool(&DescriptorPoolConfig{
		MaxSets: 8,
		PoolSizes: []PoolSize{
			{Type: metadata.DescriptorTypeUniformBuffer, Count: 8},
			{Type: metadata.DescriptorTypeStorageBuffer, Count: 4},
		},
		AllowFreeSets: true,
	})
	require.NoError(t, err)

	light := singleBindingLayout(metadata.DescriptorTypeStorageBuffer, 3)
	heavy := &metadata.DescriptorSetLayout{
		Bindings: []metadata.DescriptorSetLayoutBinding{
			{Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 2},
			{Binding: 1, Type: metadata.DescriptorTypeStorageBuffer, Count: 3},
		},
	}

	// Set 2 of 3 exhausts the storage-buffer channel after set 1 took 3 of
	// 4, and after its own uniform-buffer range was already carved. Every
	// counter must come back to its pre-call value.
	sets, err := pool.CreateSets([]*metadata.DescriptorSetLayout{light, heavy, light})
	require.ErrorIs(t, err, core.ErrCapacityExhausted)
	assert.Nil(t, sets)
	assert.Equal(t, uint32(8), pool.RemainingDescriptors(metadata.DescriptorTypeUniformBuffer))
	assert.Equal(t, uint32(4), pool.RemainingDescriptors(metadata.DescriptorTypeStorageBuffer))

	// Nothing leaked: a fitting batch still succeeds.
	sets, err = pool.CreateSets([]*metadata.DescriptorSetLayout{light})
	require.NoError(t, err)
	assert.Len(t, sets, 1)
}

func TestPoolBatchRollbackLinearMode(t *testing.T) {
	pool, err := NewDescriptorPool(&DescriptorPoolConfig{
		MaxSets: 8,
		PoolSizes: []PoolSize{
			{Type: metadata.DescriptorTypeStorageBuffer, Count: 4},
		},
	})
	require.NoError(t, err)

	three := singleBindingLayout(metadata.DescriptorTypeStorageBuffer, 3)

	// The bump cursor must rewind on rollback even though individual frees
	// are illegal in this mode.
	_, err = pool.CreateSets([]*metadata.DescriptorSetLayout{three, three})
	require.ErrorIs(t, err, core.ErrCapacityExhausted)
	assert.Equal(t, uint32(4), pool.RemainingDescriptors(metadata.DescriptorTypeStorageBuffer))

	sets, err := pool.CreateSets([]*metadata.DescriptorSetLayout{three})
	require.NoError(t, err)
	assert.Len(t, sets, 1)
}

func TestPoolMaxSetsExhaustion(t *testing.T) {
	pool, err := NewDescriptorPool(&DescriptorPoolConfig{
		MaxSets: 1,
		PoolSizes: []PoolSize{
			{Type: metadata.DescriptorTypeUniformBuffer, Count: 8},
		},
		AllowFreeSets: true,
	})
	require.NoError(t, err)

	layout := singleBindingLayout(metadata.DescriptorTypeUniformBuffer, 1)
	_, err = pool.CreateSets([]*metadata.DescriptorSetLayout{layout, layout})
	require.ErrorIs(t, err, core.ErrCapacityExhausted)

	set, err := pool.CreateSet(layout)
	require.NoError(t, err)
	_, err = pool.CreateSet(layout)
	require.ErrorIs(t, err, core.ErrCapacityExhausted)

	require.NoError(t, pool.FreeSets([]*DescriptorSet{set}))
	_, err = pool.CreateSet(layout)
	require.NoError(t, err)
}

func TestPoolFreeSetsRequiresFreeingMode(t *testing.T) {
	pool, err := NewDescriptorPool(&DescriptorPoolConfig{
		MaxSets: 2,
		PoolSizes: []PoolSize{
			{Type: metadata.DescriptorTypeUniformBuffer, Count: 2},
		},
	})
	require.NoError(t, err)

	set, err := pool.CreateSet(singleBindingLayout(metadata.DescriptorTypeUniformBuffer, 1))
	require.NoError(t, err)

	err = pool.FreeSets([]*DescriptorSet{set})
	assert.ErrorIs(t, err, core.ErrInvalidOperation)
	assert.True(t, set.IsLive())
}

func TestPoolDoubleFree(t *testing.T) {
	pool, err := NewDescriptorPool(&DescriptorPoolConfig{
		MaxSets: 2,
		PoolSizes: []PoolSize{
			{Type: metadata.DescriptorTypeUniformBuffer, Count: 2},
		},
		AllowFreeSets: true,
	})
	require.NoError(t, err)

	set, err := pool.CreateSet(singleBindingLayout(metadata.DescriptorTypeUniformBuffer, 1))
	require.NoError(t, err)

	require.NoError(t, pool.FreeSets([]*DescriptorSet{set}))
	err = pool.FreeSets([]*DescriptorSet{set})
	assert.ErrorIs(t, err, core.ErrInvalidOperation)
}

func TestPoolForeignSetFree(t *testing.T) {
	config := &DescriptorPoolConfig{
		MaxSets: 2,
		PoolSizes: []PoolSize{
			{Type: metadata.DescriptorTypeUniformBuffer, Count: 2},
		},
		AllowFreeSets: true,
	}
	pool, err := NewDescriptorPool(config)
	require.NoError(t, err)
	other, err := NewDescriptorPool(config)
	require.NoError(t, err)

	set, err := other.CreateSet(singleBindingLayout(metadata.DescriptorTypeUniformBuffer, 1))
	require.NoError(t, err)

	err = pool.FreeSets([]*DescriptorSet{set})
	assert.ErrorIs(t, err, core.ErrInvalidOperation)
}

func TestPoolZeroCapacityKindFailsLayout(t *testing.T) {
	pool, err := NewDescriptorPool(&DescriptorPoolConfig{
		MaxSets: 4,
		PoolSizes: []PoolSize{
			{Type: metadata.DescriptorTypeUniformBuffer, Count: 4},
		},
		AllowFreeSets: true,
	})
	require.NoError(t, err)

	mixed := &metadata.DescriptorSetLayout{
		Bindings: []metadata.DescriptorSetLayoutBinding{
			{Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 2},
			{Binding: 1, Type: metadata.DescriptorTypeStorageImage, Count: 1},
		},
	}
	_, err = pool.CreateSet(mixed)
	require.ErrorIs(t, err, core.ErrLayoutMismatch)
	// The uniform-buffer range carved before the mismatch was rolled back.
	assert.Equal(t, uint32(4), pool.RemainingDescriptors(metadata.DescriptorTypeUniformBuffer))
}

func TestPoolSharedStorageChannelsDoNotCollide(t *testing.T) {
	// Storage images and input attachments share one image-view array, and
	// the four buffer kinds share one buffer array. Writes through one
	// channel must never be visible through another.
	pool, err := NewDescriptorPool(&DescriptorPoolConfig{
		MaxSets: 2,
		PoolSizes: []PoolSize{
			{Type: metadata.DescriptorTypeStorageImage, Count: 2},
			{Type: metadata.DescriptorTypeInputAttachment, Count: 2},
			{Type: metadata.DescriptorTypeUniformBuffer, Count: 2},
			{Type: metadata.DescriptorTypeStorageBuffer, Count: 2},
		},
		AllowFreeSets: true,
	})
	require.NoError(t, err)

	layout := &metadata.DescriptorSetLayout{
		Bindings: []metadata.DescriptorSetLayoutBinding{
			{Binding: 0, Type: metadata.DescriptorTypeStorageImage, Count: 1},
			{Binding: 1, Type: metadata.DescriptorTypeInputAttachment, Count: 1},
			{Binding: 2, Type: metadata.DescriptorTypeUniformBuffer, Count: 1},
			{Binding: 3, Type: metadata.DescriptorTypeStorageBuffer, Count: 1},
		},
	}
	set, err := pool.CreateSet(layout)
	require.NoError(t, err)

	storageImage := &fakeImageView{name: "storage"}
	attachment := &fakeImageView{name: "attachment"}
	uniform := &fakeBuffer{name: "uniform"}
	ssbo := &fakeBuffer{name: "ssbo"}

	require.NoError(t, set.Update([]metadata.DescriptorWrite{
		{Binding: 0, Type: metadata.DescriptorTypeStorageImage, Infos: []metadata.DescriptorInfo{{ImageView: storageImage}}},
		{Binding: 1, Type: metadata.DescriptorTypeInputAttachment, Infos: []metadata.DescriptorInfo{{ImageView: attachment}}},
		{Binding: 2, Type: metadata.DescriptorTypeUniformBuffer, Infos: []metadata.DescriptorInfo{{Buffer: uniform}}},
		{Binding: 3, Type: metadata.DescriptorTypeStorageBuffer, Infos: []metadata.DescriptorInfo{{Buffer: ssbo}}},
	}))

	info, err := set.DescriptorAt(0, 0)
	require.NoError(t, err)
	assert.Same(t, storageImage, info.ImageView)
	info, err = set.DescriptorAt(1, 0)
	require.NoError(t, err)
	assert.Same(t, attachment, info.ImageView)
	info, err = set.DescriptorAt(2, 0)
	require.NoError(t, err)
	assert.Same(t, uniform, info.Buffer)
	info, err = set.DescriptorAt(3, 0)
	require.NoError(t, err)
	assert.Same(t, ssbo, info.Buffer)
}

func TestPoolMutableSamplerMirrorsByDefault(t *testing.T) {
	pool, err := NewDescriptorPool(&DescriptorPoolConfig{
		MaxSets: 2,
		PoolSizes: []PoolSize{
			{Type: metadata.DescriptorTypeCombinedImageSampler, Count: 4},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(4), pool.MaxDescriptors(metadata.DescriptorTypeMutableSampler))
}

func TestPoolMutableSamplerExplicitBudget(t *testing.T) {
	pool, err := NewDescriptorPool(&DescriptorPoolConfig{
		MaxSets: 4,
		PoolSizes: []PoolSize{
			{Type: metadata.DescriptorTypeCombinedImageSampler, Count: 4},
		},
		MutableSamplerCount: 1,
		AllowFreeSets:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), pool.MaxDescriptors(metadata.DescriptorTypeMutableSampler))

	// Two mutable samplers exceed the shadow budget even though the
	// combined-image-sampler channel itself has room.
	_, err = pool.CreateSet(singleBindingLayout(metadata.DescriptorTypeCombinedImageSampler, 2))
	require.ErrorIs(t, err, core.ErrCapacityExhausted)
	assert.Equal(t, uint32(4), pool.RemainingDescriptors(metadata.DescriptorTypeCombinedImageSampler))

	// Immutable samplers never touch the shadow channel.
	immutable := &metadata.DescriptorSetLayout{
		Bindings: []metadata.DescriptorSetLayoutBinding{
			{
				Binding: 0,
				Type:    metadata.DescriptorTypeCombinedImageSampler,
				Count:   2,
				ImmutableSamplers: []metadata.SamplerHandle{
					&fakeSampler{name: "a"}, &fakeSampler{name: "b"},
				},
			},
		},
	}
	set, err := pool.CreateSet(immutable)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), pool.RemainingDescriptors(metadata.DescriptorTypeMutableSampler))
	require.NoError(t, pool.FreeSets([]*DescriptorSet{set}))
}

func TestPoolUpdateValidation(t *testing.T) {
	pool, err := NewDescriptorPool(&DescriptorPoolConfig{
		MaxSets: 2,
		PoolSizes: []PoolSize{
			{Type: metadata.DescriptorTypeUniformBuffer, Count: 2},
		},
		AllowFreeSets: true,
	})
	require.NoError(t, err)

	set, err := pool.CreateSet(singleBindingLayout(metadata.DescriptorTypeUniformBuffer, 2))
	require.NoError(t, err)

	// Type disagreeing with the layout.
	err = set.Update([]metadata.DescriptorWrite{
		{Binding: 0, Type: metadata.DescriptorTypeStorageBuffer, Infos: []metadata.DescriptorInfo{{Buffer: &fakeBuffer{}}}},
	})
	assert.ErrorIs(t, err, core.ErrLayoutMismatch)

	// Unknown binding.
	err = set.Update([]metadata.DescriptorWrite{
		{Binding: 7, Type: metadata.DescriptorTypeUniformBuffer, Infos: []metadata.DescriptorInfo{{Buffer: &fakeBuffer{}}}},
	})
	assert.ErrorIs(t, err, core.ErrLayoutMismatch)

	// Array overflow.
	err = set.Update([]metadata.DescriptorWrite{
		{Binding: 0, ArrayElement: 1, Type: metadata.DescriptorTypeUniformBuffer, Infos: []metadata.DescriptorInfo{{Buffer: &fakeBuffer{}}, {Buffer: &fakeBuffer{}}}},
	})
	assert.ErrorIs(t, err, core.ErrInvalidOperation)

	// Updating a freed set.
	require.NoError(t, pool.FreeSets([]*DescriptorSet{set}))
	err = set.Update([]metadata.DescriptorWrite{
		{Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Infos: []metadata.DescriptorInfo{{Buffer: &fakeBuffer{}}}},
	})
	assert.ErrorIs(t, err, core.ErrInvalidOperation)
}

func TestPoolDestroyTearsDownLiveSets(t *testing.T) {
	pool, err := NewDescriptorPool(&DescriptorPoolConfig{
		MaxSets: 2,
		PoolSizes: []PoolSize{
			{Type: metadata.DescriptorTypeUniformTexelBuffer, Count: 1},
			{Type: metadata.DescriptorTypeAccelerationStructure, Count: 1},
		},
	})
	require.NoError(t, err)

	layout := &metadata.DescriptorSetLayout{
		Bindings: []metadata.DescriptorSetLayoutBinding{
			{Binding: 0, Type: metadata.DescriptorTypeUniformTexelBuffer, Count: 1},
			{Binding: 1, Type: metadata.DescriptorTypeAccelerationStructure, Count: 1},
		},
	}
	set, err := pool.CreateSet(layout)
	require.NoError(t, err)
	require.NoError(t, set.Update([]metadata.DescriptorWrite{
		{Binding: 0, Type: metadata.DescriptorTypeUniformTexelBuffer, Infos: []metadata.DescriptorInfo{{BufferView: &fakeBufferView{}}}},
		{Binding: 1, Type: metadata.DescriptorTypeAccelerationStructure, Infos: []metadata.DescriptorInfo{{AccelerationStructure: &fakeAccelerationStructure{}}}},
	}))

	// Teardown destructs every live set regardless of the freeing mode.
	pool.Destroy()
	assert.False(t, set.IsLive())
	_, err = set.DescriptorAt(0, 0)
	assert.ErrorIs(t, err, core.ErrInvalidOperation)
}
