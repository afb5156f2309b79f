/*
Copyright 2025 Vidigest Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package vidigest

import (
	"strings"

	"github.com/vidigest/vidigest/model"
)

// NormalizeTranscript collapses an ordered sequence of timed caption
// segments into one clean text block. Streaming captions re-emit the tail of
// the previous line, so for each segment only the part that does not overlap
// the accumulated text is appended: the longest suffix of the output that
// matches a prefix of the segment (case- and whitespace-insensitive) is
// dropped from the segment before appending.
//
// The result is deterministic, and normalizing an already-clean text again
// changes nothing.
func NormalizeTranscript(segments []model.CaptionSegment) string {
	var words []string
	for _, seg := range segments {
		segWords := strings.Fields(seg.Text)
		if len(segWords) == 0 {
			continue
		}
		k := overlapLength(words, segWords)
		words = append(words, segWords[k:]...)
	}
	return strings.Join(words, " ")
}

// overlapLength returns the largest k such that the last k words of acc
// match the first k words of next, ignoring case.
func overlapLength(acc, next []string) int {
	max := len(next)
	if len(acc) < max {
		max = len(acc)
	}
	for k := max; k > 0; k-- {
		matched := true
		for i := 0; i < k; i++ {
			if !strings.EqualFold(acc[len(acc)-k+i], next[i]) {
				matched = false
				break
			}
		}
		if matched {
			return k
		}
	}
	return 0
}
