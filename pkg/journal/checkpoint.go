package journal

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"predictcore/pkg/learning"
	"predictcore/pkg/position"
)

// FlushPositions atomically checkpoints the full open-position set. Called
// after every exit and on a 60s heartbeat cadence.
func (j *Journal) FlushPositions(positions []position.Position) error {
	data, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: marshal positions: %w", err)
	}
	return writeAtomic(filepath.Join(j.dir, positionsFileName), data)
}

// LoadPositions reads positions.json if present. A missing file is a clean
// first run, not an error.
func (j *Journal) LoadPositions() ([]position.Position, error) {
	data, ok, err := readIfExists(filepath.Join(j.dir, positionsFileName))
	if err != nil {
		return nil, fmt.Errorf("journal: read positions checkpoint: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var positions []position.Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("journal: decode positions checkpoint: %w", err)
	}
	return positions, nil
}

// Recover replays positions.json into mgr. The caller is responsible for
// running CheckExits against the recovered set on the very first tick,
// since a recovered position may already have crossed an exit threshold
// while the engine was down.
func (j *Journal) Recover(mgr *position.Manager) error {
	positions, err := j.LoadPositions()
	if err != nil {
		return err
	}
	for _, p := range positions {
		mgr.Recover(p)
	}
	return nil
}

// FlushLearning atomically checkpoints the LearningStore's aggregates.
func (j *Journal) FlushLearning(snap learning.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: marshal learning snapshot: %w", err)
	}
	return writeAtomic(filepath.Join(j.dir, learningFileName), data)
}

// LoadLearning reads learning.json if present. A missing file means the
// store starts from learning.DefaultBaseParams.
func (j *Journal) LoadLearning() (learning.Snapshot, bool, error) {
	data, ok, err := readIfExists(filepath.Join(j.dir, learningFileName))
	if err != nil {
		return learning.Snapshot{}, false, fmt.Errorf("journal: read learning snapshot: %w", err)
	}
	if !ok {
		return learning.Snapshot{}, false, nil
	}
	var snap learning.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return learning.Snapshot{}, false, fmt.Errorf("journal: decode learning snapshot: %w", err)
	}
	return snap, true, nil
}
