// Package ports hands out the four listener ports of a broker instance.
package ports

import (
	"fmt"
	"sync"

	"github.com/phayes/freeport"

	"github.com/core-tools/hsu-rmq-launcher/pkg/errors"
	"github.com/core-tools/hsu-rmq-launcher/pkg/instance"
)

// DefaultFixedBase reproduces the historical 1230..1233 layout
const DefaultFixedBase = 1230

// maxFreeAttempts bounds how often the free allocator asks the OS again
// after getting back a port that is already leased.
const maxFreeAttempts = 8

// Allocator leases instance ports. A port stays leased until Release, so two
// live instances from the same allocator never share a port.
type Allocator interface {
	Allocate() (instance.Ports, error)
	Release(ports instance.Ports)
}

// leases is the in-process lease table shared by the allocators
type leases struct {
	mutex  sync.Mutex
	leased map[int]struct{}
}

func newLeases() leases {
	return leases{leased: make(map[int]struct{})}
}

// tryLease leases all of candidate or none of it. Caller holds the mutex.
func (l *leases) tryLease(candidate []int) bool {
	seen := make(map[int]struct{}, len(candidate))
	for _, port := range candidate {
		if _, taken := l.leased[port]; taken {
			return false
		}
		if _, dup := seen[port]; dup {
			return false
		}
		seen[port] = struct{}{}
	}
	for _, port := range candidate {
		l.leased[port] = struct{}{}
	}
	return true
}

func (l *leases) release(ports instance.Ports) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	for _, port := range ports.List() {
		delete(l.leased, port)
	}
}

func toPorts(list []int) instance.Ports {
	return instance.Ports{
		Client:        list[0],
		PeerDiscovery: list[1],
		Distribution:  list[2],
		Management:    list[3],
	}
}

// FixedAllocator hands out consecutive blocks of four ports starting at base
type FixedAllocator struct {
	leases
	base   int
	blocks int
}

// NewFixedAllocator creates an allocator using base, base+1, base+2, base+3
// for the first instance, base+4.. for the second and so on.
func NewFixedAllocator(base int) *FixedAllocator {
	if base <= 0 {
		base = DefaultFixedBase
	}
	return &FixedAllocator{
		leases: newLeases(),
		base:   base,
		blocks: (65536 - base) / 4,
	}
}

func (a *FixedAllocator) Allocate() (instance.Ports, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	for block := 0; block < a.blocks; block++ {
		first := a.base + block*4
		candidate := []int{first, first + 1, first + 2, first + 3}
		if a.tryLease(candidate) {
			return toPorts(candidate), nil
		}
	}
	return instance.Ports{}, errors.NewPreconditionError("no free port block left", nil).WithContext("base", a.base)
}

func (a *FixedAllocator) Release(ports instance.Ports) {
	a.release(ports)
}

// FreeAllocator asks the operating system for ephemeral ports.
// The ports are only known to be free at the moment they were checked; the
// broker binding them later can still race another process.
type FreeAllocator struct {
	leases
	getFreePorts func(count int) ([]int, error)
}

func NewFreeAllocator() *FreeAllocator {
	return &FreeAllocator{
		leases:       newLeases(),
		getFreePorts: freeport.GetFreePorts,
	}
}

func (a *FreeAllocator) Allocate() (instance.Ports, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxFreeAttempts; attempt++ {
		candidate, err := a.getFreePorts(4)
		if err != nil {
			lastErr = err
			continue
		}
		if len(candidate) != 4 {
			lastErr = fmt.Errorf("expected 4 ports, got %d", len(candidate))
			continue
		}
		if a.tryLease(candidate) {
			return toPorts(candidate), nil
		}
	}
	return instance.Ports{}, errors.NewPreconditionError("failed to allocate free ports", lastErr).
		WithContext("attempts", maxFreeAttempts)
}

func (a *FreeAllocator) Release(ports instance.Ports) {
	a.release(ports)
}

// NewAllocator returns the allocator for a strategy name: "fixed" or "free"
func NewAllocator(strategy string, fixedBase int) (Allocator, error) {
	switch strategy {
	case "fixed":
		return NewFixedAllocator(fixedBase), nil
	case "free", "":
		return NewFreeAllocator(), nil
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported port allocation strategy: %s", strategy), nil).
			WithContext("supported_strategies", "fixed, free")
	}
}
