package providers

import "sync"

// In-memory provider implementations. These back the demo wiring and the
// test suite; a deployment against live registry contracts swaps them for
// RPC-backed equivalents without touching the core.

// MemoryAgents is a mutable set of known agent ids
type MemoryAgents struct {
	mu     sync.RWMutex
	agents map[string]bool
}

func NewMemoryAgents(ids ...string) *MemoryAgents {
	m := &MemoryAgents{agents: make(map[string]bool, len(ids))}
	for _, id := range ids {
		m.agents[id] = true
	}
	return m
}

func (m *MemoryAgents) Register(agentID string) {
	m.mu.Lock()
	m.agents[agentID] = true
	m.mu.Unlock()
}

func (m *MemoryAgents) IsKnown(agentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agents[agentID]
}

// MemoryStake tracks staked reviewer addresses
type MemoryStake struct {
	mu     sync.RWMutex
	staked map[string]bool
}

func NewMemoryStake() *MemoryStake {
	return &MemoryStake{staked: make(map[string]bool)}
}

func (m *MemoryStake) SetStaked(address string, staked bool) {
	m.mu.Lock()
	if staked {
		m.staked[address] = true
	} else {
		delete(m.staked, address)
	}
	m.mu.Unlock()
}

func (m *MemoryStake) IsStaked(address string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.staked[address], nil
}

func (m *MemoryStake) StakedAddresses() (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.staked))
	for addr := range m.staked {
		out[addr] = true
	}
	return out, nil
}

// MemoryReceipts counts verified payment receipts per (client, agent) pair
type MemoryReceipts struct {
	mu       sync.RWMutex
	receipts map[string]int // key: client + "\x00" + agent
	byClient map[string]int
}

func NewMemoryReceipts() *MemoryReceipts {
	return &MemoryReceipts{
		receipts: make(map[string]int),
		byClient: make(map[string]int),
	}
}

func receiptKey(client, agent string) string {
	return client + "\x00" + agent
}

// RecordPayment registers one verified receipt for the pair
func (m *MemoryReceipts) RecordPayment(client, agent string) {
	m.mu.Lock()
	m.receipts[receiptKey(client, agent)]++
	m.byClient[client]++
	m.mu.Unlock()
}

func (m *MemoryReceipts) ReceiptsFor(client, agent string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.receipts[receiptKey(client, agent)], nil
}

func (m *MemoryReceipts) HasAny(client string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byClient[client] > 0, nil
}

// FixedClock returns a constant time; tests advance it manually
type FixedClock struct {
	mu sync.Mutex
	ms int64
}

func NewFixedClock(ms int64) *FixedClock {
	return &FixedClock{ms: ms}
}

func (c *FixedClock) NowMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

func (c *FixedClock) Advance(deltaMs int64) {
	c.mu.Lock()
	c.ms += deltaMs
	c.mu.Unlock()
}
