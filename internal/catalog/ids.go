package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var productIDPattern = regexp.MustCompile(`^PROD\d+$`)

// nextProductID scans the existing ids for the highest PROD<n> suffix and
// returns PROD<n+1>. Two concurrent creates can observe the same maximum
// and collide; the unique constraint on products.id turns that into an
// error rather than a silent overwrite.
func nextProductID(existing []string) string {
	last := 0
	for _, id := range existing {
		if !productIDPattern.MatchString(id) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(id, "PROD"))
		if err != nil {
			continue
		}
		if n > last {
			last = n
		}
	}

	return fmt.Sprintf("PROD%d", last+1)
}
