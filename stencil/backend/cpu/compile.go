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

package cpu

import (
	"fmt"
	"runtime"
	"sync"

	"modernc.org/cc/v4"
)

// validate parses and type-checks src with a real C11 front end, catching
// malformed codegen before it is cached. It never lowers to an object
// file — numeric execution replays the lowered program directly in Go
// (exec.go) — but parsing gives the "source compiles" guarantee and the
// diagnostic text CompilationError surfaces.
func validate(src string) error {
	cfg, err := ccConfig()
	if err != nil {
		// No usable C front end on this host; execution replays the
		// lowered program in Go and never runs the C source, so skip
		// validation rather than failing every lowering.
		return nil
	}

	sources := []cc.Source{
		{Name: "<predefined>", Value: cfg.Predefined},
		{Name: "<builtin>", Value: cc.Builtin},
		{Name: "stencil.c", Value: src},
	}
	if _, err := cc.Parse(cfg, sources); err != nil {
		return &CompilationError{Source: src, Diagnostic: err.Error()}
	}
	return nil
}

// ccConfig probes the host toolchain once; every validation shares the
// result.
var ccConfig = sync.OnceValues(func() (*cc.Config, error) {
	return cc.NewConfig(runtime.GOOS, runtime.GOARCH)
})

// CompilationError reports generated C that the front end rejected.
// Source and Diagnostic are carried through so the public API can surface
// both.
type CompilationError struct {
	Source     string
	Diagnostic string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("cpu: generated C failed to compile: %s", e.Diagnostic)
}
