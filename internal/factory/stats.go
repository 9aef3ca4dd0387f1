package factory

import "time"

// GeneratorStats is a snapshot of one generator's rolling performance
type GeneratorStats struct {
	Name            string        `json:"name"`
	Requests        uint64        `json:"requests"`
	Errors          uint64        `json:"errors"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	CurrentLoad     int           `json:"current_load"`
	CacheHits       uint64        `json:"cache_hits"`
}

// Stats is a snapshot of the factory
type Stats struct {
	CacheSize   int              `json:"cache_size"`
	CacheHits   uint64           `json:"cache_hits"`
	CacheMisses uint64           `json:"cache_misses"`
	Generators  []GeneratorStats `json:"generators"`
}

// genStats is guarded by the factory lock
type genStats struct {
	requests  uint64
	errors    uint64
	avg       time.Duration
	load      int
	cacheHits uint64
}

// successRate is optimistic for generators that have not run yet
func (s *genStats) successRate() float64 {
	if s.requests == 0 {
		return 1
	}
	return float64(s.requests-s.errors) / float64(s.requests)
}

func (s *genStats) avgResponse() time.Duration { return s.avg }

func (s *genStats) record(d time.Duration, err error) {
	s.requests++
	if err != nil {
		s.errors++
	}
	s.avg += (d - s.avg) / time.Duration(s.requests)
	if s.load > 0 {
		s.load--
	}
}

func (s *genStats) snapshot(name string) GeneratorStats {
	return GeneratorStats{
		Name:            name,
		Requests:        s.requests,
		Errors:          s.errors,
		SuccessRate:     s.successRate(),
		AvgResponseTime: s.avg,
		CurrentLoad:     s.load,
		CacheHits:       s.cacheHits,
	}
}
