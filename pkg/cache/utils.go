package cache

import (
	"fmt"
	"strings"
)

// Key joins parts with ':'. Parts are formatted with %v.
func Key(parts ...interface{}) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprint(p)
	}
	return strings.Join(s, ":")
}
