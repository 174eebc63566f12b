// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stencil

import "fmt"

// Coefficients is the dense coefficient table indexed by
// (convolution_id, channel, neighbor_position). It is constant across a
// lowered kernel: lookups resolve to literals during lowering, never at
// run time.
type Coefficients struct {
	table [][][]float64
}

// NewCoefficients wraps table as a coefficient lookup. The table is
// indexed table[convolution][channel][neighbor_position]; ragged inner
// slices are allowed as long as every lookup the kernel performs lands in
// range.
func NewCoefficients(table [][][]float64) *Coefficients {
	return &Coefficients{table: table}
}

// Lookup implements ir.CoefficientTable.
func (c *Coefficients) Lookup(convolutionID, channel, neighborPosition int) (float64, error) {
	if convolutionID < 0 || convolutionID >= len(c.table) {
		return 0, fmt.Errorf("coefficient table has no convolution %d (have %d)", convolutionID, len(c.table))
	}
	channels := c.table[convolutionID]
	if channel < 0 || channel >= len(channels) {
		return 0, fmt.Errorf("coefficient table convolution %d has no channel %d (have %d)", convolutionID, channel, len(channels))
	}
	positions := channels[channel]
	if neighborPosition < 0 || neighborPosition >= len(positions) {
		return 0, fmt.Errorf("coefficient table convolution %d channel %d has no position %d (have %d)", convolutionID, channel, neighborPosition, len(positions))
	}
	return positions[neighborPosition], nil
}

// flatten serializes the table, dimensions included, for fingerprinting.
func (c *Coefficients) flatten() []float64 {
	if c == nil {
		return nil
	}
	out := []float64{float64(len(c.table))}
	for _, channels := range c.table {
		out = append(out, float64(len(channels)))
		for _, positions := range channels {
			out = append(out, float64(len(positions)))
			out = append(out, positions...)
		}
	}
	return out
}
