/*
Demo driver for the descriptor subsystem: builds a pool from a sizing
profile, materializes long-lived sets, then runs a few frames of the
transient-set cache against hand-rolled completion tokens standing in for
device fences.
*/
package main

import (
	"github.com/spaghettifunk/talos/engine/config"
	"github.com/spaghettifunk/talos/engine/core"
	"github.com/spaghettifunk/talos/engine/renderer/descriptors"
	"github.com/spaghettifunk/talos/engine/renderer/metadata"
	"github.com/spaghettifunk/talos/engine/systems"
)

type demoBuffer struct{ name string }

func (b *demoBuffer) Buffer() {}

type demoImageView struct{ name string }

func (v *demoImageView) ImageView() {}

type demoSampler struct{ name string }

func (s *demoSampler) Sampler() {}

// A submission token the demo satisfies by hand, the way a fence would be
// satisfied by the device.
type demoToken struct{ signaled bool }

func (t *demoToken) Done() bool { return t.signaled }

func main() {
	profile, err := config.ParseProfile([]byte(`
max_sets = 16
allow_free_sets = true
cache_size = 4

[[pool_sizes]]
type = "combined_image_sampler"
count = 16

[[pool_sizes]]
type = "uniform_buffer"
count = 16

[[pool_sizes]]
type = "storage_buffer"
count = 32
`))
	if err != nil {
		core.LogFatal(err.Error())
	}

	frameLayout := &metadata.DescriptorSetLayout{
		Bindings: []metadata.DescriptorSetLayoutBinding{
			{Binding: 0, Type: metadata.DescriptorTypeStorageBuffer, Count: 3},
		},
	}
	system, err := systems.NewDescriptorSystem(profile, frameLayout)
	if err != nil {
		core.LogFatal(err.Error())
	}
	defer system.Shutdown()

	// A long-lived material set.
	materialLayout := &metadata.DescriptorSetLayout{
		Bindings: []metadata.DescriptorSetLayoutBinding{
			{Binding: 0, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 2},
			{Binding: 1, Type: metadata.DescriptorTypeUniformBuffer, Count: 1},
		},
	}
	sets, err := system.CreateSets([]*metadata.DescriptorSetLayout{materialLayout})
	if err != nil {
		core.LogFatal(err.Error())
	}
	material := sets[0]
	if err := material.Update([]metadata.DescriptorWrite{
		{Binding: 0, Type: metadata.DescriptorTypeCombinedImageSampler, Infos: []metadata.DescriptorInfo{
			{ImageView: &demoImageView{name: "albedo"}, Sampler: &demoSampler{name: "linear"}},
			{ImageView: &demoImageView{name: "normal"}, Sampler: &demoSampler{name: "linear"}},
		}},
		{Binding: 1, Type: metadata.DescriptorTypeUniformBuffer, Infos: []metadata.DescriptorInfo{
			{Buffer: &demoBuffer{name: "material-constants"}},
		}},
	}); err != nil {
		core.LogFatal(err.Error())
	}

	// Frame loop: acquire, write, "submit", release with the submission's
	// token, and poll as the pretend device catches up.
	inFlight := []*demoToken{}
	for frame := 0; frame < 8; frame++ {
		index, set, err := system.AcquireFrameSet()
		if err != nil {
			core.LogFatal(err.Error())
		}
		if set == nil {
			core.LogWarn("frame %d: cache exhausted, skipping", frame)
		} else {
			if err := set.Update([]metadata.DescriptorWrite{
				{Binding: 0, Type: metadata.DescriptorTypeStorageBuffer, Infos: []metadata.DescriptorInfo{
					{Buffer: &demoBuffer{name: "transforms"}},
					{Buffer: &demoBuffer{name: "modifications"}},
					{Buffer: &demoBuffer{name: "requests"}},
				}},
			}); err != nil {
				core.LogFatal(err.Error())
			}

			token := &demoToken{}
			inFlight = append(inFlight, token)
			if err := system.ReleaseFrameSet(index, token); err != nil {
				core.LogFatal(err.Error())
			}
			core.LogInfo("frame %d submitted with cache slot %d", frame, index)
		}

		// The device trails two frames behind.
		if len(inFlight) > 2 {
			inFlight[0].signaled = true
			inFlight = inFlight[1:]
		}
		system.Poll()
	}

	info, err := material.DescriptorAt(0, 0)
	if err != nil {
		core.LogFatal(err.Error())
	}
	core.LogInfo("material still binds %s", info.ImageView.(*demoImageView).name)

	if err := system.Pool().FreeSets([]*descriptors.DescriptorSet{material}); err != nil {
		core.LogFatal(err.Error())
	}
	core.LogInfo("done")
}
