package model

import (
	"fmt"
	"math"
	"math/big"
	"sort"

	"k8s.io/apimachinery/pkg/api/resource"
)

// Resource names understood by the scheduler. Memory and disk are measured in MiB, cpus and gpus in whole or
// fractional devices.
const (
	CPUs    = "cpus"
	Mem     = "mem"
	Disk    = "disk"
	DiskIn  = "disk_in"
	DiskOut = "disk_out"
	GPUs    = "gpus"
)

const bytesPerMiB = 1024 * 1024

// Resources maps a resource name to an amount. Missing names are treated as zero.
type Resources map[string]float64

// FromQuantities converts configured quantities into Resources. Memory and disk quantities are given in bytes
// (e.g. "512Mi") and converted to MiB.
func FromQuantities(quantities map[string]resource.Quantity) Resources {
	r := make(Resources, len(quantities))
	for name, q := range quantities {
		value := QuantityAsFloat64(q)
		switch name {
		case Mem, Disk, DiskIn, DiskOut:
			value = value / bytesPerMiB
		}
		r[name] = value
	}
	return r
}

// QuantityAsFloat64 returns a float64 representation of a quantity.
func QuantityAsFloat64(q resource.Quantity) float64 {
	dec := q.AsDec()
	unscaled, _ := new(big.Float).SetInt(dec.UnscaledBig()).Float64()
	return unscaled * math.Pow10(-int(dec.Scale()))
}

func (a Resources) DeepCopy() Resources {
	if a == nil {
		return nil
	}
	c := make(Resources, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// Add adds b to a in place.
func (a Resources) Add(b Resources) {
	for k, v := range b {
		a[k] += v
	}
}

// Sub subtracts b from a in place.
func (a Resources) Sub(b Resources) {
	for k, v := range b {
		a[k] -= v
	}
}

// IsSufficientToMeet returns true if a has at least as much of every resource as required.
func (a Resources) IsSufficientToMeet(required Resources) bool {
	for k, v := range required {
		if v <= 0 {
			continue
		}
		// Allow for float rounding in repeated Sub calls
		if a[k]+1e-9 < v {
			return false
		}
	}
	return true
}

// Shortfall returns the names of resources in required that a cannot meet, sorted.
func (a Resources) Shortfall(required Resources) []string {
	var names []string
	for k, v := range required {
		if v > 0 && a[k]+1e-9 < v {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

func (a Resources) IsZero() bool {
	for _, v := range a {
		if v != 0 {
			return false
		}
	}
	return true
}

func (a Resources) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	str := ""
	for _, k := range keys {
		if str != "" {
			str += ", "
		}
		str += fmt.Sprintf("%s: %.2f", k, a[k])
	}
	return str
}
