package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MonthlyStats represents analysis activity for a specific month. The
// analysis times cover the backend round trip of forwarded analyses.
type MonthlyStats struct {
	AnalysesForwarded      int       `json:"analyses_forwarded"`
	RejectedRequests       int       `json:"rejected_requests"`
	BackendFailures        int       `json:"backend_failures"`
	ResultsServed          int       `json:"results_served"`
	NormalizationFallbacks int       `json:"normalization_fallbacks"`
	AnalysisTimeMs         int64     `json:"analysis_time_ms"`
	AverageAnalysisMs      float64   `json:"average_analysis_ms"`
	LastUpdated            time.Time `json:"last_updated"`
}

// Counters is a set of increments applied together. AnalysisTime only
// counts when AnalysesForwarded is set.
type Counters struct {
	AnalysesForwarded      int
	RejectedRequests       int
	BackendFailures        int
	ResultsServed          int
	NormalizationFallbacks int
	AnalysisTime           time.Duration
}

const (
	fileName      = "stats.json"
	writeInterval = 5 * time.Minute
	writeDebounce = time.Minute
)

// Storage handles persistent storage of statistics
type Storage struct {
	mutex       sync.RWMutex
	stats       map[string]*MonthlyStats // key: "YYYY-MM"
	filePath    string
	lastWrite   time.Time
	writeBuffer chan struct{}
	logger      *zap.Logger

	now  func() time.Time
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewStorage creates a statistics store under dataDir and starts its
// background writer. Call Shutdown to flush and stop it.
func NewStorage(dataDir string, logger *zap.Logger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Storage{
		stats:       make(map[string]*MonthlyStats),
		filePath:    filepath.Join(dataDir, fileName),
		writeBuffer: make(chan struct{}, 1),
		logger:      logger.Named("stats"),
		now:         time.Now,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	go s.backgroundWriter()

	return s, nil
}

func (s *Storage) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	return json.Unmarshal(data, &s.stats)
}

// save writes statistics to a temporary file and renames it into place
func (s *Storage) save() error {
	s.mutex.RLock()
	data, err := json.Marshal(s.stats)
	s.mutex.RUnlock()

	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, s.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

func (s *Storage) saveAndLog() {
	if err := s.save(); err != nil {
		s.logger.Warn("saving statistics failed", zap.Error(err))
	}
}

func (s *Storage) backgroundWriter() {
	defer close(s.done)

	ticker := time.NewTicker(writeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.writeBuffer:
			s.saveAndLog()
		case <-ticker.C:
			s.saveAndLog()
		case <-s.stop:
			return
		}
	}
}

func (s *Storage) currentMonth() string {
	return s.now().Format("2006-01")
}

// requestWrite signals that a write to disk is needed
func (s *Storage) requestWrite() {
	select {
	case s.writeBuffer <- struct{}{}:
	default:
		// write already pending
	}
}

// Increment adds c to the current month's counters
func (s *Storage) Increment(c Counters) {
	month := s.currentMonth()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats, exists := s.stats[month]
	if !exists {
		stats = &MonthlyStats{}
		s.stats[month] = stats
	}

	stats.AnalysesForwarded += c.AnalysesForwarded
	stats.RejectedRequests += c.RejectedRequests
	stats.BackendFailures += c.BackendFailures
	stats.ResultsServed += c.ResultsServed
	stats.NormalizationFallbacks += c.NormalizationFallbacks
	if c.AnalysesForwarded > 0 {
		stats.AnalysisTimeMs += c.AnalysisTime.Milliseconds()
	}
	if stats.AnalysesForwarded > 0 {
		stats.AverageAnalysisMs = float64(stats.AnalysisTimeMs) / float64(stats.AnalysesForwarded)
	}
	stats.LastUpdated = s.now()

	if s.now().Sub(s.lastWrite) > writeDebounce {
		s.requestWrite()
		s.lastWrite = s.now()
	}
}

// GetCurrentStats returns statistics for the current month
func (s *Storage) GetCurrentStats() MonthlyStats {
	stats, _ := s.GetMonthlyStats(s.currentMonth())
	return stats
}

// Cleanup drops statistics older than retainMonths, counting the current
// month as the first
func (s *Storage) Cleanup(retainMonths int) {
	if retainMonths < 1 {
		retainMonths = 1
	}

	keep := make(map[string]bool, retainMonths)
	now := s.now()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for i := 0; i < retainMonths; i++ {
		keep[first.AddDate(0, -i, 0).Format("2006-01")] = true
	}

	s.mutex.Lock()
	removed := 0
	for key := range s.stats {
		if !keep[key] {
			delete(s.stats, key)
			removed++
		}
	}
	s.mutex.Unlock()

	s.requestWrite()
	s.logger.Debug("statistics cleaned up", zap.Int("retain_months", retainMonths), zap.Int("removed", removed))
}

// GetMonthlyStats returns statistics for a specific month
func (s *Storage) GetMonthlyStats(yearMonth string) (MonthlyStats, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if stats, exists := s.stats[yearMonth]; exists {
		return *stats, true
	}
	return MonthlyStats{}, false
}

// GetAllMonths returns all months with statistics, newest first
func (s *Storage) GetAllMonths() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	months := make([]string, 0, len(s.stats))
	for month := range s.stats {
		months = append(months, month)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(months)))

	return months
}

// Shutdown stops the background writer and writes the final state to disk
func (s *Storage) Shutdown() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return s.save()
}
