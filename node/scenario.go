// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/runtime"
)

// Scenario scripts extrinsics by the block they are included in.
//
//	blocks:
//	  3:
//	    - signer: <account>
//	      call: bond
//	      args: {controller: <account>, value: 1000}
type Scenario struct {
	Blocks map[mesh.BlockNumber][]*runtime.Extrinsic `yaml:"blocks"`
}

// ParseScenario decodes a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, errors.Wrap(err, "decode scenario")
	}
	if _, ok := s.Blocks[0]; ok {
		return nil, errors.New("scenario: block 0 is the genesis")
	}
	return &s, nil
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario")
	}
	return ParseScenario(data)
}

// At returns the extrinsics scripted for block n.
func (s *Scenario) At(n mesh.BlockNumber) []*runtime.Extrinsic {
	if s == nil {
		return nil
	}
	return s.Blocks[n]
}

// Last is the highest block with scripted extrinsics.
func (s *Scenario) Last() (last mesh.BlockNumber) {
	if s == nil {
		return 0
	}
	for n := range s.Blocks {
		last = max(last, n)
	}
	return
}
