// Package shaper turns a raw set of log lines into a shaped response
// artifact, per spec.md §4.6. Shaping is a pure, deterministic function of
// (lines, mode), which is what makes shaped artifacts cacheable.
package shaper

import (
	"encoding/json"
	"sort"
	"time"
)

// Mode selects how raw results are shaped.
type Mode string

const (
	ModeRaw       Mode = "raw"
	ModeTruncated Mode = "truncated"
	ModeSummary   Mode = "summary"
	ModeSmart     Mode = "smart"
)

// Default thresholds used by ModeSmart to pick raw/truncated/summary.
const (
	SmartRawMax       = 50
	SmartTruncatedMax = 500
	defaultTruncateAt = 50
	topLabelsPerKey   = 5
)

// Line is one flattened log entry, independent of lokiclient's wire types,
// so the shaper has no dependency on the HTTP client.
type Line struct {
	Timestamp time.Time
	Stream    map[string]string
	Text      string
}

// TimeBucket is one bucket of a coarse time-distribution histogram.
type TimeBucket struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// Summary is the aggregate view produced by ModeSummary (and by ModeSmart
// when the line count is large).
type Summary struct {
	LineCount        int                          `json:"line_count"`
	UniqueStreams    int                           `json:"unique_streams"`
	TopLabels        map[string]map[string]int     `json:"top_labels"`
	TimeDistribution []TimeBucket                  `json:"time_distribution"`
	EarliestTimestamp *time.Time                   `json:"earliest_timestamp,omitempty"`
	LatestTimestamp   *time.Time                   `json:"latest_timestamp,omitempty"`
}

// Artifact is the shaped output, ready to serialize back to the caller.
type Artifact struct {
	Mode       Mode      `json:"mode"`
	Lines      []Line    `json:"lines,omitempty"`
	TotalLines int       `json:"total_lines"`
	Elided     int       `json:"elided,omitempty"`
	Summary    *Summary  `json:"summary,omitempty"`
	ByteSize   int       `json:"-"`
}

// ResolveMode turns ModeSmart into a concrete mode given the line count,
// per the fixed thresholds in spec.md §4.6: raw if <=50, truncated if
// 51-500, summary if >500.
func ResolveMode(mode Mode, lineCount int) Mode {
	if mode != ModeSmart {
		return mode
	}
	switch {
	case lineCount <= SmartRawMax:
		return ModeRaw
	case lineCount <= SmartTruncatedMax:
		return ModeTruncated
	default:
		return ModeSummary
	}
}

// Shape produces a deterministic Artifact from lines for the given mode.
// truncateAt is the K used by ModeTruncated/resolved-ModeSmart; 0 selects
// the default (50).
func Shape(lines []Line, mode Mode, truncateAt int) Artifact {
	if truncateAt <= 0 {
		truncateAt = defaultTruncateAt
	}

	resolved := ResolveMode(mode, len(lines))

	var artifact Artifact
	switch resolved {
	case ModeRaw:
		artifact = Artifact{Mode: resolved, Lines: lines, TotalLines: len(lines)}
	case ModeTruncated:
		cut := truncateAt
		if cut > len(lines) {
			cut = len(lines)
		}
		artifact = Artifact{
			Mode:       resolved,
			Lines:      lines[:cut],
			TotalLines: len(lines),
			Elided:     len(lines) - cut,
		}
	case ModeSummary:
		artifact = Artifact{
			Mode:       resolved,
			TotalLines: len(lines),
			Summary:    summarize(lines),
		}
	default:
		artifact = Artifact{Mode: ModeRaw, Lines: lines, TotalLines: len(lines)}
	}

	artifact.ByteSize = estimateByteSize(artifact)
	return artifact
}

func summarize(lines []Line) *Summary {
	s := &Summary{
		LineCount: len(lines),
		TopLabels: map[string]map[string]int{},
	}

	streamSeen := map[string]bool{}
	labelCounts := map[string]map[string]int{}
	buckets := map[int64]int{}
	const bucketWidth = time.Minute

	for _, line := range lines {
		streamKey := streamSignature(line.Stream)
		streamSeen[streamKey] = true

		for k, v := range line.Stream {
			if labelCounts[k] == nil {
				labelCounts[k] = map[string]int{}
			}
			labelCounts[k][v]++
		}

		if s.EarliestTimestamp == nil || line.Timestamp.Before(*s.EarliestTimestamp) {
			t := line.Timestamp
			s.EarliestTimestamp = &t
		}
		if s.LatestTimestamp == nil || line.Timestamp.After(*s.LatestTimestamp) {
			t := line.Timestamp
			s.LatestTimestamp = &t
		}

		bucketKey := line.Timestamp.Truncate(bucketWidth).Unix()
		buckets[bucketKey]++
	}

	s.UniqueStreams = len(streamSeen)
	s.TopLabels = topNPerLabel(labelCounts, topLabelsPerKey)
	s.TimeDistribution = sortedBuckets(buckets, bucketWidth)

	return s
}

func streamSignature(stream map[string]string) string {
	keys := make([]string, 0, len(stream))
	for k := range stream {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data, _ := json.Marshal(keys)
	sig := string(data)
	for _, k := range keys {
		sig += "|" + k + "=" + stream[k]
	}
	return sig
}

func topNPerLabel(counts map[string]map[string]int, n int) map[string]map[string]int {
	result := make(map[string]map[string]int, len(counts))
	for label, values := range counts {
		type kv struct {
			value string
			count int
		}
		pairs := make([]kv, 0, len(values))
		for v, c := range values {
			pairs = append(pairs, kv{v, c})
		}
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i].count != pairs[j].count {
				return pairs[i].count > pairs[j].count
			}
			return pairs[i].value < pairs[j].value
		})
		if len(pairs) > n {
			pairs = pairs[:n]
		}
		top := make(map[string]int, len(pairs))
		for _, p := range pairs {
			top[p.value] = p.count
		}
		result[label] = top
	}
	return result
}

func sortedBuckets(buckets map[int64]int, width time.Duration) []TimeBucket {
	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	result := make([]TimeBucket, 0, len(keys))
	for _, k := range keys {
		result = append(result, TimeBucket{Start: time.Unix(k, 0).UTC(), Count: buckets[k]})
	}
	return result
}

func estimateByteSize(a Artifact) int {
	data, err := json.Marshal(a)
	if err != nil {
		return 0
	}
	return len(data)
}
