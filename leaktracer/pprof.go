// Copyright 2025 The Leaktracer Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package leaktracer

import (
	"github.com/google/pprof/profile"
)

// ToPprof converts a table snapshot into a pprof profile. Attribution is
// aggregate, so every symbol becomes a single-frame sample carrying its
// gross allocation counters.
func ToPprof(stats []SymbolStats, meta ReportMeta) *profile.Profile {
	prof := &profile.Profile{
		DefaultSampleType: "alloc_space",
		SampleType: []*profile.ValueType{
			{Type: "alloc_objects", Unit: "count"},
			{Type: "alloc_space", Unit: "bytes"},
		},
		PeriodType: &profile.ValueType{Type: "space", Unit: "bytes"},
		Period:     1,
	}

	mapping := &profile.Mapping{
		ID:      1,
		File:    meta.ExecutablePath,
		BuildID: meta.BuildID,
	}
	prof.Mapping = []*profile.Mapping{mapping}

	for i, st := range stats {
		fn := &profile.Function{
			ID:         uint64(i + 1),
			Name:       st.Name,
			SystemName: st.Name,
		}
		prof.Function = append(prof.Function, fn)

		loc := &profile.Location{
			ID:      uint64(i + 1),
			Mapping: mapping,
			Line: []profile.Line{
				{Function: fn, Line: 1},
			},
		}
		prof.Location = append(prof.Location, loc)

		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{int64(st.Count), int64(st.Allocated)},
		})
	}

	return prof
}
