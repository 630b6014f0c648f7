package csv

import "strings"

const utf8BOM = "\ufeff"

// NormalizeHeader canonicalizes raw header cells: edge whitespace and a
// leading UTF-8 BOM are stripped, then each name either takes its headerMap
// rename or falls through to lower-case with spaces as underscores. The
// published extracts use upper-case names ("AIRLINE", "ARRIVAL_DELAY"), so
// the fallback alone usually lands on the dictionary spelling.
//
// The drift probe shares this function so its verdicts match what a real run
// would see.
func NormalizeHeader(hdr []string, headerMap map[string]string) []string {
	out := make([]string, len(hdr))
	for i, h := range hdr {
		if hasEdgeSpace(h) {
			h = strings.TrimSpace(h)
		}
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		if mapped, ok := headerMap[h]; ok {
			h = mapped
		} else {
			h = strings.ReplaceAll(strings.ToLower(h), " ", "_")
		}
		out[i] = h
	}
	return out
}
