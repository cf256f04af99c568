package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// parseItem parses "key=qty". With allowNew, the key "new" yields a
// fresh UUID.
func parseItem(s string, allowNew bool) (uuid.UUID, int, error) {
	k, q, ok := strings.Cut(s, "=")
	if !ok {
		return uuid.Nil, 0, fmt.Errorf("item %q: want key=quantity", s)
	}

	var key uuid.UUID
	if allowNew && k == "new" {
		key = uuid.New()
	} else {
		parsed, err := uuid.Parse(k)
		if err != nil {
			return uuid.Nil, 0, fmt.Errorf("item %q: resource key: %w", s, err)
		}
		key = parsed
	}

	qty, err := strconv.Atoi(q)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("item %q: quantity: %w", s, err)
	}
	return key, qty, nil
}
