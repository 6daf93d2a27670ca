package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

const BackupVersion = 1

// Backup is a full copy of the named collections, keyed by collection name.
type Backup struct {
	Version     int                        `json:"version"`
	ExportedAt  time.Time                  `json:"exported_at"`
	Collections map[string]json.RawMessage `json:"collections"`
}

type ImportResult struct {
	Restored map[string]int `json:"restored"`
	// Reset lists collections whose payload was unreadable and were emptied.
	Reset []string `json:"reset,omitempty"`
	// Ignored lists collection names the store does not know about.
	Ignored []string `json:"ignored,omitempty"`
}

func Export(ctx context.Context, backend Backend, collections []string, now time.Time) (Backup, error) {
	out := Backup{
		Version:     BackupVersion,
		ExportedAt:  now,
		Collections: make(map[string]json.RawMessage, len(collections)),
	}
	for _, name := range collections {
		docs, err := backend.GetAll(ctx, name)
		if err != nil {
			return Backup{}, fmt.Errorf("export %s: %w", name, err)
		}
		if docs == nil {
			docs = []Document{}
		}
		payload, err := json.Marshal(docs)
		if err != nil {
			return Backup{}, fmt.Errorf("export %s: %w", name, err)
		}
		out.Collections[name] = payload
	}
	return out, nil
}

// Import replaces every known collection present in backup inside one
// transaction. Collections absent from backup are left untouched.
func Import(ctx context.Context, s Store, backup Backup, known []string) (ImportResult, error) {
	if backup.Version > BackupVersion {
		return ImportResult{}, fmt.Errorf("%w: unsupported backup version %d", ErrValidation, backup.Version)
	}

	allowed := make(map[string]bool, len(known))
	for _, name := range known {
		allowed[name] = true
	}

	result := ImportResult{Restored: make(map[string]int)}
	names := make([]string, 0, len(backup.Collections))
	for name := range backup.Collections {
		if !allowed[name] {
			result.Ignored = append(result.Ignored, name)
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	sort.Strings(result.Ignored)

	err := s.Atomic(ctx, func(ctx context.Context, tx Backend) error {
		for _, name := range names {
			docs, ok := readCollection(backup.Collections[name])
			if !ok {
				result.Reset = append(result.Reset, name)
			}
			if err := clearCollection(ctx, tx, name); err != nil {
				return err
			}
			for _, doc := range docs {
				if _, err := tx.Add(ctx, name, doc); err != nil {
					return fmt.Errorf("import %s: %w", name, err)
				}
			}
			result.Restored[name] = len(docs)
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	return result, nil
}

// readCollection accepts only an array of JSON objects. Anything else is treated
// as corrupt and yields an empty collection.
func readCollection(payload json.RawMessage) ([]Document, bool) {
	var docs []Document
	if err := json.Unmarshal(payload, &docs); err != nil {
		return nil, false
	}
	for _, doc := range docs {
		if _, err := decodeFields(doc); err != nil {
			return nil, false
		}
	}
	return docs, true
}

func clearCollection(ctx context.Context, tx Backend, name string) error {
	existing, err := tx.GetAll(ctx, name)
	if err != nil {
		return err
	}
	for _, doc := range existing {
		if _, err := tx.Remove(ctx, name, ID(doc)); err != nil {
			return err
		}
	}
	return nil
}
