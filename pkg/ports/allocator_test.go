package ports

import (
	"fmt"
	"sync"
	"testing"

	"github.com/core-tools/hsu-rmq-launcher/pkg/errors"
	"github.com/core-tools/hsu-rmq-launcher/pkg/instance"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedAllocator_LegacyLayout(t *testing.T) {
	allocator := NewFixedAllocator(0)

	ports, err := allocator.Allocate()
	require.NoError(t, err)
	assert.Equal(t, instance.Ports{Client: 1230, PeerDiscovery: 1231, Distribution: 1232, Management: 1233}, ports)

	second, err := allocator.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 1234, second.Client)

	allocator.Release(ports)
	again, err := allocator.Allocate()
	require.NoError(t, err)
	assert.Equal(t, ports, again)
}

func TestFixedAllocator_Exhaustion(t *testing.T) {
	allocator := NewFixedAllocator(65528)

	_, err := allocator.Allocate()
	require.NoError(t, err)
	_, err = allocator.Allocate()
	require.NoError(t, err)

	_, err = allocator.Allocate()
	assert.Error(t, err)
	assert.True(t, errors.IsPreconditionError(err))
}

func TestFreeAllocator_RealPorts(t *testing.T) {
	allocator := NewFreeAllocator()

	ports, err := allocator.Allocate()
	require.NoError(t, err)
	assert.NoError(t, ports.Validate())
	allocator.Release(ports)
}

func TestFreeAllocator_SkipsLeasedPorts(t *testing.T) {
	responses := [][]int{
		{2000, 2001, 2002, 2003},
		{2000, 3001, 3002, 3003}, // 2000 is leased
		{3000, 3000, 3002, 3003}, // duplicate
		{3000, 3001, 3002, 3003},
	}
	calls := 0
	allocator := NewFreeAllocator()
	allocator.getFreePorts = func(count int) ([]int, error) {
		require.Equal(t, 4, count)
		response := responses[calls]
		calls++
		return response, nil
	}

	first, err := allocator.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 2000, first.Client)

	second, err := allocator.Allocate()
	require.NoError(t, err)
	assert.Equal(t, instance.Ports{Client: 3000, PeerDiscovery: 3001, Distribution: 3002, Management: 3003}, second)
	assert.Equal(t, 4, calls)
}

func TestFreeAllocator_GivesUp(t *testing.T) {
	allocator := NewFreeAllocator()
	allocator.getFreePorts = func(count int) ([]int, error) {
		return nil, fmt.Errorf("no ports")
	}

	_, err := allocator.Allocate()
	assert.Error(t, err)
	assert.True(t, errors.IsPreconditionError(err))
}

func TestFixedAllocator_Concurrent(t *testing.T) {
	allocator := NewFixedAllocator(20000)

	var wg sync.WaitGroup
	results := make(chan instance.Ports, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ports, err := allocator.Allocate()
			assert.NoError(t, err)
			results <- ports
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool)
	for ports := range results {
		for _, port := range ports.List() {
			assert.False(t, seen[port], "port %d leased twice", port)
			seen[port] = true
		}
	}
	assert.Len(t, seen, 64)
}

func TestNewAllocator(t *testing.T) {
	fixed, err := NewAllocator("fixed", 1230)
	require.NoError(t, err)
	assert.IsType(t, &FixedAllocator{}, fixed)

	free, err := NewAllocator("", 0)
	require.NoError(t, err)
	assert.IsType(t, &FreeAllocator{}, free)

	_, err = NewAllocator("random", 0)
	assert.True(t, errors.IsValidationError(err))
}
