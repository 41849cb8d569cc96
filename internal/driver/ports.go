package driver

import (
	"fmt"
	"net"
	"sync"
)

// PortAllocator hands out ephemeral host ports for the host-mapped driver
// variants, and tracks which ports are currently assigned to a container so
// they can be released when the container is stopped.
type PortAllocator struct {
	mu        sync.Mutex
	assigned  map[string]int // containerID -> port
	rangeLow  int
	rangeHigh int
}

// NewPortAllocator builds an allocator that binds to an OS-chosen ephemeral
// port when rangeLow/rangeHigh are zero, or restricts to the given range
// otherwise.
func NewPortAllocator(rangeLow, rangeHigh int) *PortAllocator {
	return &PortAllocator{
		assigned:  make(map[string]int),
		rangeLow:  rangeLow,
		rangeHigh: rangeHigh,
	}
}

// Allocate reserves a free host port for containerID. It probes for
// availability by briefly binding a listener, exactly like the tests it
// backs would; a genuinely free port can still race with something else
// binding it a moment later, which surfaces as a container-start failure;
// nothing retries the start.
func (p *PortAllocator) Allocate(containerID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rangeLow == 0 || p.rangeHigh == 0 {
		port, err := findFreePort()
		if err != nil {
			return 0, err
		}
		p.assigned[containerID] = port
		return port, nil
	}

	for candidate := p.rangeLow; candidate <= p.rangeHigh; candidate++ {
		if portFree(candidate) {
			p.assigned[containerID] = candidate
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("no free host port in range %d-%d", p.rangeLow, p.rangeHigh)
}

// Release frees the port associated with containerID, if any.
func (p *PortAllocator) Release(containerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.assigned, containerID)
}

func findFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func portFree(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}
