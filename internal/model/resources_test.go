package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"k8s.io/apimachinery/pkg/api/resource"
)

func TestFromQuantities(t *testing.T) {
	r := FromQuantities(map[string]resource.Quantity{
		CPUs: resource.MustParse("500m"),
		Mem:  resource.MustParse("1Gi"),
		Disk: resource.MustParse("64Mi"),
	})
	assert.InDelta(t, 0.5, r[CPUs], 1e-9)
	assert.InDelta(t, 1024, r[Mem], 1e-9)
	assert.InDelta(t, 64, r[Disk], 1e-9)
}

func TestResources_IsSufficientToMeet(t *testing.T) {
	tests := map[string]struct {
		available Resources
		required  Resources
		expected  bool
		shortfall []string
	}{
		"exact": {
			available: Resources{CPUs: 1, Mem: 1024},
			required:  Resources{CPUs: 1, Mem: 1024},
			expected:  true,
		},
		"missing resource": {
			available: Resources{CPUs: 4},
			required:  Resources{CPUs: 1, GPUs: 1},
			expected:  false,
			shortfall: []string{GPUs},
		},
		"zero requirement ignored": {
			available: Resources{},
			required:  Resources{GPUs: 0},
			expected:  true,
		},
		"too little": {
			available: Resources{CPUs: 1, Mem: 10, Disk: 5},
			required:  Resources{CPUs: 2, Mem: 10, Disk: 6},
			expected:  false,
			shortfall: []string{CPUs, Disk},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.available.IsSufficientToMeet(tc.required))
			assert.Equal(t, tc.shortfall, tc.available.Shortfall(tc.required))
		})
	}
}

func TestResources_AddSub(t *testing.T) {
	r := Resources{CPUs: 4, Mem: 2048}
	r.Sub(Resources{CPUs: 1.5, Mem: 512})
	assert.Equal(t, Resources{CPUs: 2.5, Mem: 1536}, r)

	r.Add(Resources{Disk: 10})
	assert.Equal(t, Resources{CPUs: 2.5, Mem: 1536, Disk: 10}, r)
	assert.Equal(t, "cpus: 2.50, disk: 10.00, mem: 1536.00", r.String())
}
