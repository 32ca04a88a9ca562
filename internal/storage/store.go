package storage

import (
	"errors"
	"sort"
	"sync"
)

// ErrKeyNotFound is returned when a key doesn't exist in a partition
var ErrKeyNotFound = errors.New("key not found")

// PartitionID names one partition of one storage module's keyspace.
// Handoff moves data at exactly this granularity.
type PartitionID struct {
	Module string // Owning storage module, e.g. "kv"
	Index  uint64 // Partition index within the module's keyspace
}

// Entry is a single key-value pair, the unit transfer batches are made of
type Entry struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// StoreStats contains statistics about one partition
type StoreStats struct {
	Keys  int // Number of keys
	Bytes int // Total size of all values in bytes
}

// PartitionStore is an in-memory key-value store namespaced by partition.
// Senders drain whole partitions out of it and receivers fill whole
// partitions into it, so every operation is keyed by PartitionID.
// Thread-safe for concurrent access via sync.RWMutex.
type PartitionStore struct {
	mu    sync.RWMutex                      // Protects concurrent access
	parts map[PartitionID]map[string][]byte // Per-partition key-value data
}

// NewPartitionStore creates a new empty store
func NewPartitionStore() *PartitionStore {
	return &PartitionStore{
		parts: make(map[PartitionID]map[string][]byte),
	}
}

// Get retrieves a value by key from the given partition
// Returns a copy of the value to prevent external modification
func (s *PartitionStore) Get(p PartitionID, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.parts[p][key]
	if !exists {
		return nil, ErrKeyNotFound
	}

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// Put stores a value with the given key in the given partition
// Makes a copy of the value to prevent external modification
func (s *PartitionStore) Put(p PartitionID, key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	part, exists := s.parts[p]
	if !exists {
		part = make(map[string][]byte)
		s.parts[p] = part
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	part[key] = stored
}

// Delete removes a key-value pair from the given partition
// No error if key doesn't exist (idempotent)
func (s *PartitionStore) Delete(p PartitionID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.parts[p], key)
}

// Keys returns all keys in the given partition, sorted
func (s *PartitionStore) Keys(p PartitionID) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.parts[p]))
	for key := range s.parts[p] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns a sorted copy of every key-value pair in the partition.
// This is the sender-side read: the returned entries share no memory with
// the store, so a transfer can proceed while the partition keeps serving.
func (s *PartitionStore) Entries(p PartitionID) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.parts[p]))
	for key, value := range s.parts[p] {
		stored := make([]byte, len(value))
		copy(stored, value)
		entries = append(entries, Entry{Key: key, Value: stored})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// PutBatch stores a batch of entries in the given partition, overwriting
// existing keys. This is the receiver-side write.
func (s *PartitionStore) PutBatch(p PartitionID, entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	part, exists := s.parts[p]
	if !exists {
		part = make(map[string][]byte, len(entries))
		s.parts[p] = part
	}

	for _, e := range entries {
		stored := make([]byte, len(e.Value))
		copy(stored, e.Value)
		part[e.Key] = stored
	}
}

// DropPartition removes the partition and all its data, returning the
// number of keys removed. Called on the source node once an outbound
// handoff has completed.
func (s *PartitionStore) DropPartition(p PartitionID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.parts[p])
	delete(s.parts, p)
	return n
}

// Stats returns storage statistics for the given partition
func (s *PartitionStore) Stats(p PartitionID) StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totalBytes := 0
	for _, value := range s.parts[p] {
		totalBytes += len(value)
	}

	return StoreStats{
		Keys:  len(s.parts[p]),
		Bytes: totalBytes,
	}
}
