package descriptors

import (
	"github.com/spaghettifunk/talos/engine/renderer/metadata"
)

// Test doubles for the device-layer handles. Identity is pointer identity,
// which is what the pool stores and returns.

type fakeImageView struct{ name string }

func (f *fakeImageView) ImageView() {}

type fakeSampler struct{ name string }

func (f *fakeSampler) Sampler() {}

type fakeBuffer struct{ name string }

func (f *fakeBuffer) Buffer() {}

type fakeBufferView struct{ name string }

func (f *fakeBufferView) BufferView() {}

type fakeAccelerationStructure struct{ name string }

func (f *fakeAccelerationStructure) AccelerationStructure() {}

// manualToken is a completion token tests flip by hand.
type manualToken struct{ done bool }

func (t *manualToken) Done() bool { return t.done }

func singleBindingLayout(t metadata.DescriptorType, count uint32) *metadata.DescriptorSetLayout {
	return &metadata.DescriptorSetLayout{
		Bindings: []metadata.DescriptorSetLayoutBinding{
			{Binding: 0, Type: t, Count: count},
		},
	}
}
