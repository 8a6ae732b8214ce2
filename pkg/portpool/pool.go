package portpool

import (
	"errors"
	"fmt"
	"sync"
)

// ErrExhausted is returned when every port in the range is in use.
var ErrExhausted = errors.New("port pool exhausted")

// Range is a half-open span of ports withheld from allocation, e.g. ports
// owned by the recording sinks.
type Range struct {
	From int // inclusive
	To   int // exclusive
}

func (r Range) contains(port int) bool {
	return port >= r.From && port < r.To
}

// Pool hands out UDP ports for dynamic media branches. Allocation is
// first-fit lowest-available; release of a port that is not held is a no-op
// so overlapping teardown paths cannot double-free.
type Pool struct {
	mu       sync.Mutex
	base     int
	count    int
	reserved []Range
	inUse    map[int]struct{}
}

// New creates a pool over [base, base+count). Reserved ranges are excluded
// from allocation entirely.
func New(base, count int, reserved ...Range) (*Pool, error) {
	if base <= 0 || base > 65535 {
		return nil, fmt.Errorf("invalid base port %d", base)
	}
	if count <= 0 || base+count > 65536 {
		return nil, fmt.Errorf("invalid port count %d for base %d", count, base)
	}
	return &Pool{
		base:     base,
		count:    count,
		reserved: reserved,
		inUse:    make(map[int]struct{}),
	}, nil
}

// Allocate returns the lowest free port, or ErrExhausted.
func (p *Pool) Allocate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for port := p.base; port < p.base+p.count; port++ {
		if p.isReserved(port) {
			continue
		}
		if _, taken := p.inUse[port]; taken {
			continue
		}
		p.inUse[port] = struct{}{}
		return port, nil
	}
	return 0, ErrExhausted
}

// Release frees a previously allocated port. Idempotent.
func (p *Pool) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inUse, port)
}

// InUse reports how many ports are currently allocated.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

// Free reports how many ports remain allocatable.
func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	free := 0
	for port := p.base; port < p.base+p.count; port++ {
		if p.isReserved(port) {
			continue
		}
		if _, taken := p.inUse[port]; !taken {
			free++
		}
	}
	return free
}

func (p *Pool) isReserved(port int) bool {
	for _, r := range p.reserved {
		if r.contains(port) {
			return true
		}
	}
	return false
}
