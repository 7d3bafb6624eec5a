// internal/parking/zonestore.go
package parking

import (
	"errors"
	"sort"
	"sync"
)

// ErrUnknownZone is returned when an operation references a zone id that has
// not been registered.
var ErrUnknownZone = errors.New("unknown zone")

// ErrInvalidEventKind is returned when an event kind is not entry or exit.
var ErrInvalidEventKind = errors.New("invalid event kind")

// zoneEntry pairs a zone with its own lock so updates to different zones
// never contend with each other.
type zoneEntry struct {
	mu   sync.Mutex
	zone Zone
}

// ZoneStateStore holds the authoritative occupancy counters for all zones.
// The registry map is only ever read after startup registration has finished,
// but registration/deregistration from the zone-management boundary is
// allowed at runtime, so lookups take a read lock.
type ZoneStateStore struct {
	mu    sync.RWMutex
	zones map[int]*zoneEntry
}

func NewZoneStateStore() *ZoneStateStore {
	return &ZoneStateStore{zones: make(map[int]*zoneEntry)}
}

// Register adds a zone to the store. Counters of an already-registered zone id
// are left untouched.
func (s *ZoneStateStore) Register(z Zone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[z.ID]; ok {
		return
	}
	if z.TotalSpots < 0 {
		z.TotalSpots = 0
	}
	if z.OccupiedSpots < 0 {
		z.OccupiedSpots = 0
	}
	if z.OccupiedSpots > z.TotalSpots {
		z.OccupiedSpots = z.TotalSpots
	}
	s.zones[z.ID] = &zoneEntry{zone: z}
}

// Deregister removes a zone. Idempotent.
func (s *ZoneStateStore) Deregister(zoneID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.zones, zoneID)
}

func (s *ZoneStateStore) lookup(zoneID int) (*zoneEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.zones[zoneID]
	if !ok {
		return nil, ErrUnknownZone
	}
	return e, nil
}

// Get returns the current (occupied, total) counters for a zone.
func (s *ZoneStateStore) Get(zoneID int) (occupied, total int, err error) {
	e, err := s.lookup(zoneID)
	if err != nil {
		return 0, 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.zone.OccupiedSpots, e.zone.TotalSpots, nil
}

// GetZone returns a copy of the zone.
func (s *ZoneStateStore) GetZone(zoneID int) (Zone, error) {
	e, err := s.lookup(zoneID)
	if err != nil {
		return Zone{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.zone, nil
}

// Apply adds delta (+1 or -1) to a zone's occupancy and returns the new
// occupied count. The result is clamped into [0, total]: an entry on a full
// zone and an exit on an empty zone both leave the count unchanged without
// error. The clamp is the contract, not a defect.
func (s *ZoneStateStore) Apply(zoneID, delta int) (int, error) {
	e, err := s.lookup(zoneID)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.zone.OccupiedSpots + delta
	if next < 0 {
		next = 0
	}
	if next > e.zone.TotalSpots {
		next = e.zone.TotalSpots
	}
	e.zone.OccupiedSpots = next
	return next, nil
}

// Snapshot returns a stable copy of every registered zone, ordered by zone
// code, for the scheduler and read-only API surfaces.
func (s *ZoneStateStore) Snapshot() []Zone {
	s.mu.RLock()
	entries := make([]*zoneEntry, 0, len(s.zones))
	for _, e := range s.zones {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Zone, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.zone)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
