package models

// Stats summarizes one processing pass over a queue.
type Stats struct {
	Total     int
	Succeeded int
	Failed    int
	Pending   int
}

// Add merges another pass result into s.
func (s *Stats) Add(other Stats) {
	s.Total += other.Total
	s.Succeeded += other.Succeeded
	s.Failed += other.Failed
	s.Pending += other.Pending
}
