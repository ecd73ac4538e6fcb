package descriptors

import (
	"fmt"

	"github.com/spaghettifunk/talos/engine/containers"
	"github.com/spaghettifunk/talos/engine/core"
	"github.com/spaghettifunk/talos/engine/renderer/metadata"
)

/** @brief Sentinel returned by Acquire when no slot is free. */
const InvalidIndex = ^uint32(0)

/** @brief Default ring size when the caller does not pick one. */
const DefaultCacheSize = 32

type slotState uint8

const (
	slotFree slotState = iota
	slotAcquired
	slotPending
)

// A released slot waiting for the device to finish reading it.
type pendingRelease struct {
	index uint32
	token metadata.CompletionToken
}

/**
 * @brief A fixed ring of prebuilt binding-set instances reused across
 * short-lived submissions. A slot goes FREE -> ACQUIRED -> PENDING(token) ->
 * FREE; reuse is gated on the recorded completion token so the host never
 * overwrites storage the device may still be reading. The cache owns its
 * slots and borrows the pool the sets were created from.
 *
 * Acquire never blocks. Exhaustion is a backpressure signal (InvalidIndex),
 * not an error; reclamation is driven by the explicit Poll step so callers
 * and tests control exactly when "safe to reuse" advances.
 */
type DescriptorSetCache struct {
	pool    *DescriptorPool
	sets    []*DescriptorSet
	states  []slotState
	free    []uint32
	pending *containers.RingQueue[pendingRelease]
}

func NewDescriptorSetCache(pool *DescriptorPool, layout *metadata.DescriptorSetLayout, capacity uint32) (*DescriptorSetCache, error) {
	if capacity == 0 {
		capacity = DefaultCacheSize
	}

	layouts := make([]*metadata.DescriptorSetLayout, capacity)
	for i := range layouts {
		layouts[i] = layout
	}
	sets, err := pool.CreateSets(layouts)
	if err != nil {
		return nil, fmt.Errorf("NewDescriptorSetCache - failed to prebuild %d sets: %w", capacity, err)
	}

	cache := &DescriptorSetCache{
		pool:    pool,
		sets:    sets,
		states:  make([]slotState, capacity),
		free:    make([]uint32, 0, capacity),
		pending: containers.NewRingQueue[pendingRelease](int(capacity)),
	}
	// Hand slots out in index order at first.
	for i := int64(capacity) - 1; i >= 0; i-- {
		cache.free = append(cache.free, uint32(i))
	}
	return cache, nil
}

/**
 * @brief Acquire returns the index of a FREE slot and marks it ACQUIRED.
 * When none is free it first reclaims any pending slot whose token is
 * satisfied; if that yields nothing it returns InvalidIndex.
 */
func (c *DescriptorSetCache) Acquire() uint32 {
	if len(c.free) == 0 {
		c.Poll()
	}
	if len(c.free) == 0 {
		return InvalidIndex
	}
	index := c.free[len(c.free)-1]
	c.free = c.free[:len(c.free)-1]
	c.states[index] = slotAcquired
	return index
}

/**
 * @brief Release hands an ACQUIRED slot back with the token of the
 * submission that read it. The slot's storage stays untouched until the
 * token reports done. A nil token means the device never saw the slot and it
 * goes straight back to FREE.
 */
func (c *DescriptorSetCache) Release(index uint32, token metadata.CompletionToken) error {
	if index >= uint32(len(c.sets)) {
		err := fmt.Errorf("release of slot %d on a cache of %d: %w", index, len(c.sets), core.ErrInvalidOperation)
		core.LogError(err.Error())
		return err
	}
	if c.states[index] != slotAcquired {
		err := fmt.Errorf("release of slot %d that is not acquired: %w", index, core.ErrInvalidOperation)
		core.LogError(err.Error())
		return err
	}
	if token == nil {
		c.states[index] = slotFree
		c.free = append(c.free, index)
		return nil
	}
	c.states[index] = slotPending
	// Cannot fail: the ring holds one entry per slot.
	if err := c.pending.Enqueue(pendingRelease{index: index, token: token}); err != nil {
		core.LogFatal("descriptor set cache pending queue overflow: %s", err.Error())
	}
	return nil
}

/**
 * @brief Poll sweeps the pending queue once, returning every slot whose
 * token is now satisfied to the free list. Tokens may complete out of order;
 * unsatisfied ones are requeued. Returns how many slots were reclaimed.
 */
func (c *DescriptorSetCache) Poll() int {
	reclaimed := 0
	for n := c.pending.Len(); n > 0; n-- {
		entry, err := c.pending.Dequeue()
		if err != nil {
			break
		}
		if entry.token.Done() {
			c.states[entry.index] = slotFree
			c.free = append(c.free, entry.index)
			reclaimed++
			continue
		}
		if err := c.pending.Enqueue(entry); err != nil {
			core.LogFatal("descriptor set cache pending queue overflow: %s", err.Error())
		}
	}
	return reclaimed
}

/** @brief GetSet returns the set living in a slot, or nil for a bad index. */
func (c *DescriptorSetCache) GetSet(index uint32) *DescriptorSet {
	if index >= uint32(len(c.sets)) {
		return nil
	}
	return c.sets[index]
}

/** @brief Len returns how many slots are currently acquired or pending. */
func (c *DescriptorSetCache) Len() int {
	return len(c.sets) - len(c.free)
}

/** @brief Cap returns the total number of slots. */
func (c *DescriptorSetCache) Cap() int {
	return len(c.sets)
}
