package strategy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// fileFormat is the on-disk strategy snapshot.
type fileFormat struct {
	Strategies map[string]*Strategy `json:"strategies"`
	SavedAt    time.Time            `json:"saved_at"`
}

// SaveToFile writes the full strategy set as JSON, creating parent
// directories as needed.
func (e *Engine) SaveToFile(path string) error {
	e.mu.RLock()
	snapshot := fileFormat{
		Strategies: make(map[string]*Strategy, len(e.strategies)),
		SavedAt:    time.Now().UTC(),
	}
	for id, s := range e.strategies {
		copied := *s
		snapshot.Strategies[id] = &copied
	}
	e.mu.RUnlock()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating strategy dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling strategies: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing strategy file: %w", err)
	}

	e.logger.Info().Str("path", path).Int("count", len(snapshot.Strategies)).
		Msg("strategies saved")
	return nil
}

// LoadFromFile replaces the strategy set with a saved snapshot.
func (e *Engine) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading strategy file: %w", err)
	}

	var snapshot fileFormat
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("parsing strategy file: %w", err)
	}
	if len(snapshot.Strategies) == 0 {
		return fmt.Errorf("strategy file %s holds no strategies", path)
	}

	e.mu.Lock()
	e.strategies = snapshot.Strategies
	e.mu.Unlock()

	e.logger.Info().Str("path", path).Int("count", len(snapshot.Strategies)).
		Msg("strategies loaded")
	return nil
}
