//go:build debug_mutex

package utils

import (
	"regexp"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// stackMutex is a diagnostic RWMutex: it records the stack of every holder,
// panics on same-goroutine relock, and dumps all holder stacks if a lock
// acquisition stalls past the timeout. Selected with -tags debug_mutex; the
// lease pool registry holds its lock across grant bookkeeping, which is
// where a missed unlock would otherwise wedge silently.
type stackMutex struct {
	mu sync.RWMutex

	// Guards holders/owner.
	infoMu  sync.Mutex
	holders map[int]*holderInfo
	owner   int

	timeout time.Duration
}

type holderInfo struct {
	stack string
	count int
}

func NewRWMutex() RWMutex {
	return &stackMutex{
		holders: make(map[int]*holderInfo),
		timeout: 30 * time.Second,
	}
}

var goroutineIdPattern = regexp.MustCompile(`goroutine (\d+)`)

func callerStack() string {
	buf := make([]byte, 0x10000)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// goroutineId extracts the numeric id from the "goroutine N [running]:"
// header of a stack dump.
func goroutineId(stack string) int {
	match := goroutineIdPattern.FindStringSubmatch(stack)
	if len(match) < 2 {
		panic("could not find goroutine ID")
	}
	id, _ := strconv.Atoi(match[1])
	return id
}

func (m *stackMutex) dumpHolders() {
	m.infoMu.Lock()
	defer m.infoMu.Unlock()

	println("=====================================================================")
	println("Current mutex owner:", m.owner)
	println("=====================================================================")

	for _, info := range m.holders {
		println(info.stack)
		println("=====================================================================")
	}
}

func (m *stackMutex) recordHolder() int {
	stack := callerStack()
	id := goroutineId(stack)

	m.infoMu.Lock()
	if _, held := m.holders[id]; held {
		m.infoMu.Unlock()
		m.dumpHolders()
		panic("attempted to lock a mutex that is already locked")
	}
	m.holders[id] = &holderInfo{stack: stack, count: 1}
	m.infoMu.Unlock()
	return id
}

func (m *stackMutex) dropHolder() {
	id := goroutineId(callerStack())
	m.infoMu.Lock()
	delete(m.holders, id)
	m.infoMu.Unlock()
}

// acquire runs lock on a helper goroutine so a stalled acquisition can be
// detected and reported rather than hanging forever.
func (m *stackMutex) acquire(id int, lock func()) {
	locked := make(chan struct{})
	go func() {
		lock()
		m.owner = id
		locked <- struct{}{}
	}()

	select {
	case <-locked:
	case <-time.After(m.timeout):
		m.dumpHolders()
		panic("deadlock timeout")
	}
}

func (m *stackMutex) Lock() {
	id := m.recordHolder()
	m.acquire(id, m.mu.Lock)
}

func (m *stackMutex) Unlock() {
	m.dropHolder()
	m.owner = 0
	m.mu.Unlock()
}

func (m *stackMutex) TryLock() bool {
	id := m.recordHolder()
	if !m.mu.TryLock() {
		m.infoMu.Lock()
		delete(m.holders, id)
		m.infoMu.Unlock()
		return false
	}
	m.owner = id
	return true
}

func (m *stackMutex) RLock() {
	stack := callerStack()
	id := goroutineId(stack)

	m.infoMu.Lock()
	if info, held := m.holders[id]; held {
		// Reentrant read locks are tolerated; just bump the count.
		info.count++
		m.infoMu.Unlock()
		return
	}
	m.holders[id] = &holderInfo{stack: stack, count: 1}
	m.infoMu.Unlock()

	m.acquire(id, m.mu.RLock)
}

func (m *stackMutex) RUnlock() {
	id := goroutineId(callerStack())
	m.infoMu.Lock()
	info := m.holders[id]
	if info.count > 1 {
		info.count--
		m.infoMu.Unlock()
		return
	}
	delete(m.holders, id)
	m.infoMu.Unlock()

	m.owner = 0
	m.mu.RUnlock()
}
