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

package ir

import "fmt"

// scope tracks which point-binding targets are in lexical scope during a
// tree walk, and whether we are currently nested inside an
// InteriorPointsLoop (directly or via a MultiPointsLoop).
type scope struct {
	bound          map[string]bool
	insideInterior bool
}

// Validate re-checks, independently of how a Function was built, the
// invariant that every identifier a node uses is bound by an enclosing
// loop node, and that every NeighborPointsLoop is nested inside an
// InteriorPointsLoop. It is meant to catch mistakes in hand-built or
// transformed IR, not just IR produced by Builder.
func Validate(fn *Function) error {
	s := &scope{bound: map[string]bool{}}
	for _, n := range fn.Operations {
		if err := validateNode(n, s); err != nil {
			return err
		}
	}
	return nil
}

func validateNode(n *Node, s *scope) error {
	switch n.Kind {
	case KindInteriorPointsLoop:
		child := &scope{bound: cloneBound(s.bound), insideInterior: true}
		child.bound[n.Target] = true
		for _, c := range n.Body {
			if err := validateNode(c, child); err != nil {
				return err
			}
		}
	case KindMultiPointsLoop:
		if !s.insideInterior {
			return fmt.Errorf("ir: MultiPointsLoop %q is not nested inside an InteriorPointsLoop", n.Target)
		}
		child := &scope{bound: cloneBound(s.bound), insideInterior: true}
		for _, c := range n.Body {
			if err := validateNode(c, child); err != nil {
				return err
			}
		}
	case KindNeighborPointsLoop:
		if !s.insideInterior {
			return fmt.Errorf("ir: NeighborPointsLoop %q is not nested inside an InteriorPointsLoop", n.Target)
		}
		child := &scope{bound: cloneBound(s.bound), insideInterior: s.insideInterior}
		child.bound[n.Target] = true
		for _, c := range n.Body {
			if err := validateNode(c, child); err != nil {
				return err
			}
		}
	case KindGridElement:
		if n.Index == nil || !s.bound[n.Index.Target] {
			return fmt.Errorf("ir: GridElement on %q references unbound target %q", n.GridName, indexTarget(n.Index))
		}
	case KindMathFunction:
		for _, a := range n.Args {
			if err := validateNode(a, s); err != nil {
				return err
			}
		}
	case KindAccumulate:
		for _, a := range n.Args {
			if err := validateNode(a, s); err != nil {
				return err
			}
		}
	case KindCoefficientRef, KindConst:
		// leaves, nothing to bind
	default:
		return fmt.Errorf("ir: unhandled node kind %s during validation", n.Kind)
	}
	return nil
}

func indexTarget(idx *Index) string {
	if idx == nil {
		return "<nil>"
	}
	return idx.Target
}

func cloneBound(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
