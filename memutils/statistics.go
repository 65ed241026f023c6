package memutils

// Statistics describes the occupancy of a slot arena at a point in time.
type Statistics struct {
	// ChunkCount is the number of backing chunks the arena has mapped in.
	ChunkCount int
	// SlotCount is the total number of slots carved from those chunks,
	// allocated or not.
	SlotCount int
	// OutstandingCount is the number of slots currently handed out and not
	// yet freed.
	OutstandingCount int
	// OutstandingPeak is the largest OutstandingCount observed over the
	// arena's lifetime.
	OutstandingPeak int
}

func (s *Statistics) Clear() {
	s.ChunkCount = 0
	s.SlotCount = 0
	s.OutstandingCount = 0
	s.OutstandingPeak = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.ChunkCount += other.ChunkCount
	s.SlotCount += other.SlotCount
	s.OutstandingCount += other.OutstandingCount

	if other.OutstandingPeak > s.OutstandingPeak {
		s.OutstandingPeak = other.OutstandingPeak
	}
}
