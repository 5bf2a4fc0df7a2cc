// internal/service/clustering/identity.go

// Package clustering implements the two cluster detection algorithms,
// deterministic cluster identity, and matching against historical
// clusters.
package clustering

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"sentinel/internal/domain/cluster"
)

// LocationCode builds the location part of a cluster ID: the first
// letter of each non-empty hierarchy level, uppercased. Missing levels
// are dropped, so ("Gujarat", "Andora", "", "Aloka") yields "GAA".
func LocationCode(loc cluster.LocationTuple) string {
	var b strings.Builder
	for _, level := range loc.Levels() {
		level = strings.TrimSpace(level)
		if level == "" {
			continue
		}
		b.WriteString(strings.ToUpper(level[:1]))
	}
	return b.String()
}

// SyndromeCode builds the syndrome part of a cluster ID from the
// cleaned syndrome name: first, middle and last characters when the
// cleaned name has at least three, otherwise the whole cleaned name.
func SyndromeCode(syndrome string) string {
	cleaned := cleanSyndrome(syndrome)
	if len(cleaned) < 3 {
		return cleaned
	}
	return string(cleaned[0]) + string(cleaned[len(cleaned)/2]) + string(cleaned[len(cleaned)-1])
}

func cleanSyndrome(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AssignIDs assigns deterministic cluster IDs of the form
// {ALGO}_{LOCATION}_{DDMMMYYYY}_{SYNDROME}_{SEQ} to a batch of raw
// clusters from one analysis date. The sequence is 3-digit, 1-based
// and scoped to (algorithm, location code, date); clusters take their
// sequence in a documented order (case count descending, then location
// code, then syndrome) so reruns over the same input produce the same
// IDs. The returned slice is parallel to the input.
func AssignIDs(clusters []cluster.RawCluster, date time.Time) []string {
	dateCode := strings.ToUpper(date.Format("02Jan2006"))

	order := make([]int, len(clusters))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := clusters[order[a]], clusters[order[b]]
		if ca.CaseCount() != cb.CaseCount() {
			return ca.CaseCount() > cb.CaseCount()
		}
		la, lb := LocationCode(ca.Location), LocationCode(cb.Location)
		if la != lb {
			return la < lb
		}
		return ca.Syndrome < cb.Syndrome
	})

	ids := make([]string, len(clusters))
	seq := make(map[string]int)
	for _, idx := range order {
		c := clusters[idx]
		locCode := LocationCode(c.Location)
		scope := string(c.Algorithm) + "|" + locCode + "|" + dateCode
		seq[scope]++

		parts := []string{string(c.Algorithm), locCode, dateCode}
		if code := SyndromeCode(c.Syndrome); code != "" {
			parts = append(parts, code)
		}
		parts = append(parts, fmt.Sprintf("%03d", seq[scope]))
		ids[idx] = strings.Join(parts, "_")
	}
	return ids
}
