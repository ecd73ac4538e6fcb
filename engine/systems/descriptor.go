package systems

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/talos/engine/config"
	"github.com/spaghettifunk/talos/engine/core"
	"github.com/spaghettifunk/talos/engine/renderer/descriptors"
	"github.com/spaghettifunk/talos/engine/renderer/metadata"
)

/**
 * @brief Owns the descriptor pool and the per-frame set cache for one
 * renderer instance, built from a sizing profile. The system adds the
 * frame-loop conveniences on top of the pool/cache contracts; everything
 * here is single-threaded like the structures underneath.
 */
type DescriptorSystem struct {
	/** @brief Debug identity, reported in logs. */
	ID string
	// The profile the system was built from.
	Profile *config.DescriptorPoolProfile

	pool  *descriptors.DescriptorPool
	cache *descriptors.DescriptorSetCache
}

/**
 * @brief NewDescriptorSystem builds a pool from the profile and, when a
 * frame layout is given, prebuilds the transient-set cache from it.
 */
func NewDescriptorSystem(profile *config.DescriptorPoolProfile, frameLayout *metadata.DescriptorSetLayout) (*DescriptorSystem, error) {
	poolConfig, err := profile.PoolConfig()
	if err != nil {
		return nil, err
	}
	pool, err := descriptors.NewDescriptorPool(poolConfig)
	if err != nil {
		return nil, err
	}

	system := &DescriptorSystem{
		ID:      uuid.New().String(),
		Profile: profile,
		pool:    pool,
	}
	if frameLayout != nil {
		cache, err := descriptors.NewDescriptorSetCache(pool, frameLayout, profile.CacheSize)
		if err != nil {
			return nil, err
		}
		system.cache = cache
	}

	core.LogInfo("descriptor system %s ready: %d sets, cache of %d", system.ID, pool.Capacity(), system.CacheCap())
	return system, nil
}

func (ds *DescriptorSystem) Pool() *descriptors.DescriptorPool {
	return ds.pool
}

func (ds *DescriptorSystem) Cache() *descriptors.DescriptorSetCache {
	return ds.cache
}

func (ds *DescriptorSystem) CacheCap() int {
	if ds.cache == nil {
		return 0
	}
	return ds.cache.Cap()
}

/** @brief CreateSets materializes long-lived sets straight from the pool. */
func (ds *DescriptorSystem) CreateSets(layouts []*metadata.DescriptorSetLayout) ([]*descriptors.DescriptorSet, error) {
	return ds.pool.CreateSets(layouts)
}

/**
 * @brief AcquireFrameSet grabs a transient slot and hands back both the
 * index to release later and the set to write this frame's handles into.
 * A nil set means the cache is exhausted; back off and retry after device
 * progress, or treat it as this frame's budget overrun.
 */
func (ds *DescriptorSystem) AcquireFrameSet() (uint32, *descriptors.DescriptorSet, error) {
	if ds.cache == nil {
		err := fmt.Errorf("descriptor system %s has no frame cache: %w", ds.ID, core.ErrInvalidOperation)
		core.LogError(err.Error())
		return descriptors.InvalidIndex, nil, err
	}
	index := ds.cache.Acquire()
	if index == descriptors.InvalidIndex {
		return descriptors.InvalidIndex, nil, nil
	}
	return index, ds.cache.GetSet(index), nil
}

/** @brief ReleaseFrameSet returns a slot with the submission's token. */
func (ds *DescriptorSystem) ReleaseFrameSet(index uint32, token metadata.CompletionToken) error {
	if ds.cache == nil {
		err := fmt.Errorf("descriptor system %s has no frame cache: %w", ds.ID, core.ErrInvalidOperation)
		core.LogError(err.Error())
		return err
	}
	return ds.cache.Release(index, token)
}

/** @brief Poll advances slot reclamation; call once per frame. */
func (ds *DescriptorSystem) Poll() int {
	if ds.cache == nil {
		return 0
	}
	return ds.cache.Poll()
}

/** @brief Shuts down the system, tearing down every live set. */
func (ds *DescriptorSystem) Shutdown() error {
	core.LogInfo("descriptor system %s shutting down", ds.ID)
	ds.pool.Destroy()
	ds.cache = nil
	return nil
}
