package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"tenantledger/pkg/utils"
)

// PeerEntry is one row of the static peer roster: a node identity and the
// address to dial it at.
type PeerEntry struct {
	NodeID string `yaml:"node_id"`
	Addr   string `yaml:"addr"`
	PubKey string `yaml:"pub_key"`
}

// Roster is the static peer list, loaded independently of the live-
// reloadable viper config bundle: a fixed file parsed directly with
// gopkg.in/yaml.v3 rather than through viper.
type Roster struct {
	Peers []PeerEntry `yaml:"peers"`
}

// LoadRoster reads and parses the peer roster file at path.
func LoadRoster(path string) (*Roster, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.Wrap(err, "read peer roster")
	}
	var r Roster
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, utils.Wrap(err, "parse peer roster")
	}
	return &r, nil
}
