package syncer

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// keyPattern matches tracker issue keys: QUEUE-123.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9]+-\d+$`)

// ReadKeysFile loads issue keys from a file, one per line. Blank lines and
// "#" comments are skipped. A malformed key fails the whole file: a backfill
// run should not silently sync half its input.
func ReadKeysFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keys file: %w", err)
	}
	defer f.Close()

	var keys []string
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		s := strings.TrimSpace(scanner.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		if !keyPattern.MatchString(s) {
			return nil, fmt.Errorf("%s:%d: malformed issue key %q", path, line, s)
		}
		keys = append(keys, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read keys file: %w", err)
	}
	return keys, nil
}
