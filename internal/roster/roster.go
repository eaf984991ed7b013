// Package roster loads the tournament roster from a YAML or JSON file. The
// roster is read-only input: matching builds its index from it, nothing in
// the pipeline writes it back.
package roster

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/bracketworks/standings-cli/internal/match"
	"github.com/bracketworks/standings-cli/internal/model"
)

// File is the on-disk roster document.
type File struct {
	TournamentID string              `yaml:"tournament_id" json:"tournament_id"`
	Players      []model.RosterEntry `yaml:"players" json:"players"`
}

// Load reads and validates a roster file. Format is chosen by extension:
// .json is JSON, everything else is parsed as YAML.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "roster: read %s", path)
	}

	var f File
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrapf(err, "roster: parse json %s", path)
		}
	} else {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrapf(err, "roster: parse yaml %s", path)
		}
	}

	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	if len(f.Players) == 0 {
		return eris.New("roster: no players")
	}
	seen := make(map[string]string, len(f.Players))
	for i, p := range f.Players {
		if p.PlayerID == "" {
			return eris.Errorf("roster: player %d missing player_id", i)
		}
		if p.CanonicalName == "" {
			return eris.Errorf("roster: player %s missing canonical_name", p.PlayerID)
		}
		if prev, ok := seen[p.PlayerID]; ok {
			return eris.Errorf("roster: duplicate player_id %s (%s, %s)", p.PlayerID, prev, p.CanonicalName)
		}
		seen[p.PlayerID] = p.CanonicalName
	}
	return nil
}

// Collision is a normalized key claimed by more than one player. Colliding
// rosters still match, but ties resolve by name priority, so they are worth
// surfacing before an event starts.
type Collision struct {
	Key     string
	Names   []string
	Players []string
}

// Collisions reports normalized keys shared across distinct players.
func (f *File) Collisions() []Collision {
	type claim struct {
		playerID string
		name     string
	}
	keys := make(map[string][]claim)

	add := func(playerID, name string) {
		key := match.Normalize(name)
		if key == "" {
			return
		}
		keys[key] = append(keys[key], claim{playerID: playerID, name: name})
	}
	for _, p := range f.Players {
		add(p.PlayerID, p.CanonicalName)
		if p.Handle != "" {
			add(p.PlayerID, p.Handle)
		}
		for _, alias := range p.Aliases {
			add(p.PlayerID, alias)
		}
	}

	var out []Collision
	for key, claims := range keys {
		distinct := make(map[string]bool)
		for _, c := range claims {
			distinct[c.playerID] = true
		}
		if len(distinct) < 2 {
			continue
		}
		col := Collision{Key: key}
		for _, c := range claims {
			col.Names = append(col.Names, c.name)
			col.Players = append(col.Players, c.playerID)
		}
		out = append(out, col)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
