package overnight

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nightline/internal/model"
)

// ErrCheckpointCorrupt is returned when the checkpoint file exists but
// cannot be parsed. Resuming from a corrupt checkpoint could double-call
// businesses in the middle of the night, so this is fatal.
var ErrCheckpointCorrupt = eris.New("overnight: checkpoint file is corrupt")

// LoadCheckpoint reads the checkpoint file. A missing file returns
// (nil, nil): there is nothing to resume.
func LoadCheckpoint(path string) (*model.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "overnight: read checkpoint")
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, eris.Wrap(ErrCheckpointCorrupt, err.Error())
	}
	if cp.RunID == "" || cp.NextIndex < 0 || cp.NextIndex > len(cp.LeadKeys) {
		return nil, eris.Wrap(ErrCheckpointCorrupt, "inconsistent fields")
	}
	return &cp, nil
}

// SaveCheckpoint writes the checkpoint atomically (temp file + rename) so a
// crash mid-write never leaves a torn file behind.
func SaveCheckpoint(path string, cp *model.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return eris.Wrap(err, "overnight: marshal checkpoint")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return eris.Wrap(err, "overnight: create temp checkpoint")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "overnight: write checkpoint")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "overnight: close checkpoint")
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "overnight: replace checkpoint")
	}
	return nil
}

// RemoveCheckpoint deletes the checkpoint file after a completed run.
func RemoveCheckpoint(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrap(err, "overnight: remove checkpoint")
	}
	return nil
}
