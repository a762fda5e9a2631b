package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/claymoreai/claymore/internal/domain"
)

// CharacterRepo resolves @ref tokens against project-scoped character
// sheets. Settings are stored as {"kv": [{key, type, value}]} jsonb, where
// value is a string for scalars and a string array for arrays.
type CharacterRepo struct{ Pool PgxPool }

// NewCharacterRepo constructs a CharacterRepo with the given pool.
func NewCharacterRepo(p PgxPool) *CharacterRepo { return &CharacterRepo{Pool: p} }

type characterKV struct {
	Key   string          `json:"key"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Lookup loads the named character sheet of a project. A missing sheet maps
// to ErrNotFound.
func (r *CharacterRepo) Lookup(ctx domain.Context, projectID, name string) ([]domain.CharacterEntry, error) {
	q := `SELECT settings FROM character WHERE character_name = $1 AND project_id = $2`
	var raw []byte
	if err := r.Pool.QueryRow(ctx, q, name, projectID).Scan(&raw); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("op=character.lookup name=%s: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("op=character.lookup: %w", err)
	}
	var settings struct {
		KV []characterKV `json:"kv"`
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("op=character.lookup: %w", err)
	}

	entries := make([]domain.CharacterEntry, 0, len(settings.KV))
	for _, kv := range settings.KV {
		entry := domain.CharacterEntry{Key: kv.Key, Type: kv.Type}
		if kv.Type == "array" {
			if err := json.Unmarshal(kv.Value, &entry.Values); err != nil {
				return nil, fmt.Errorf("op=character.lookup key=%s: %w", kv.Key, err)
			}
		} else {
			var v string
			if err := json.Unmarshal(kv.Value, &v); err != nil {
				return nil, fmt.Errorf("op=character.lookup key=%s: %w", kv.Key, err)
			}
			entry.Values = []string{v}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
