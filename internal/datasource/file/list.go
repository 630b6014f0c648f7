package file

import (
	"bufio"
	"os"
	"strings"
)

// ReadList reads a manifest file line by line and returns the non-empty,
// non-comment lines. Manifests name one input extract per line (a local path
// or URL), which lets a single invocation chew through a year of monthly
// extract files.
//
// A line is trimmed first; empty lines and lines starting with '#' are
// skipped, so manifests can carry comments and blank separators. Order is
// preserved.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
