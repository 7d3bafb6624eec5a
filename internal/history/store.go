// internal/history/store.go
package history

import (
	"sort"
	"sync"
	"time"

	"smart-parking-core/internal/parking"
)

// SnapshotStore is the persistence boundary for occupancy snapshots: append
// plus ordered range-read by zone and time window. External storage engines
// plug in here.
type SnapshotStore interface {
	Append(snap parking.OccupancySnapshot) error
	Range(zoneID int, from, to time.Time) ([]parking.OccupancySnapshot, error)
}

// EventStore is the persistence boundary for parking events.
type EventStore interface {
	Append(ev parking.ParkingEvent) error
	Range(zoneID int, from, to time.Time) ([]parking.ParkingEvent, error)
	Recent(zoneID int, limit int) ([]parking.ParkingEvent, error)
	CountSince(t time.Time) (int, error)
}

const defaultMaxPerZone = 4096

// MemorySnapshotStore keeps a bounded, timestamp-ordered snapshot series per
// zone. Oldest entries are dropped once the per-zone capacity is reached.
type MemorySnapshotStore struct {
	mu       sync.RWMutex
	byZone   map[int][]parking.OccupancySnapshot
	capacity int
}

func NewMemorySnapshotStore(capacity int) *MemorySnapshotStore {
	if capacity <= 0 {
		capacity = defaultMaxPerZone
	}
	return &MemorySnapshotStore{
		byZone:   make(map[int][]parking.OccupancySnapshot),
		capacity: capacity,
	}
}

func (s *MemorySnapshotStore) Append(snap parking.OccupancySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.byZone[snap.ZoneID]
	if len(buf) >= s.capacity {
		buf = buf[1:]
	}
	s.byZone[snap.ZoneID] = append(buf, snap)
	return nil
}

func (s *MemorySnapshotStore) Range(zoneID int, from, to time.Time) ([]parking.OccupancySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf := s.byZone[zoneID]
	// Snapshots are produced in timestamp order, so the window is contiguous.
	lo := sort.Search(len(buf), func(i int) bool { return !buf[i].Timestamp.Before(from) })
	hi := sort.Search(len(buf), func(i int) bool { return buf[i].Timestamp.After(to) })
	out := make([]parking.OccupancySnapshot, hi-lo)
	copy(out, buf[lo:hi])
	return out, nil
}

// MemoryEventStore keeps a bounded, timestamp-ordered event series per zone.
// Events may arrive with out-of-order client timestamps, so Append inserts
// at the sorted position.
type MemoryEventStore struct {
	mu       sync.RWMutex
	byZone   map[int][]parking.ParkingEvent
	capacity int
}

func NewMemoryEventStore(capacity int) *MemoryEventStore {
	if capacity <= 0 {
		capacity = defaultMaxPerZone
	}
	return &MemoryEventStore{
		byZone:   make(map[int][]parking.ParkingEvent),
		capacity: capacity,
	}
}

func (s *MemoryEventStore) Append(ev parking.ParkingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.byZone[ev.ZoneID]
	if len(buf) >= s.capacity {
		buf = buf[1:]
	}
	i := sort.Search(len(buf), func(i int) bool { return buf[i].Timestamp.After(ev.Timestamp) })
	buf = append(buf, parking.ParkingEvent{})
	copy(buf[i+1:], buf[i:])
	buf[i] = ev
	s.byZone[ev.ZoneID] = buf
	return nil
}

func (s *MemoryEventStore) Range(zoneID int, from, to time.Time) ([]parking.ParkingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf := s.byZone[zoneID]
	lo := sort.Search(len(buf), func(i int) bool { return !buf[i].Timestamp.Before(from) })
	hi := sort.Search(len(buf), func(i int) bool { return buf[i].Timestamp.After(to) })
	out := make([]parking.ParkingEvent, hi-lo)
	copy(out, buf[lo:hi])
	return out, nil
}

// Recent returns up to limit events for a zone, newest first. A zoneID of 0
// spans all zones.
func (s *MemoryEventStore) Recent(zoneID int, limit int) ([]parking.ParkingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []parking.ParkingEvent
	if zoneID != 0 {
		all = append(all, s.byZone[zoneID]...)
	} else {
		for _, buf := range s.byZone {
			all = append(all, buf...)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	}

	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]parking.ParkingEvent, limit)
	for i := 0; i < limit; i++ {
		out[i] = all[len(all)-1-i]
	}
	return out, nil
}

func (s *MemoryEventStore) CountSince(t time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, buf := range s.byZone {
		lo := sort.Search(len(buf), func(i int) bool { return !buf[i].Timestamp.Before(t) })
		count += len(buf) - lo
	}
	return count, nil
}
