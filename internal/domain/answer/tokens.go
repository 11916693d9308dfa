package answer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/turtacn/Controversy-Insight/pkg/errors"
)

// ParseTokenIDs parses a whitespace-delimited token-identifier field into an
// ordered sequence of integer identifiers.
//
// Contract:
//   - A blank or whitespace-only field yields (nil, nil): zero tokens is a
//     valid parse, not an error.
//   - Any field element that is not a base-10 integer fails the whole parse
//     with ErrCodeTokenFieldUnparsable; partial results are never returned.
//   - Order and duplicates are preserved exactly as given.
func ParseTokenIDs(raw string) ([]int64, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(fields))
	for i, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, errors.New(errors.ErrCodeTokenFieldUnparsable,
				fmt.Sprintf("token field element %d (%q) is not an integer", i, f))
		}
		ids = append(ids, id)
	}
	return ids, nil
}
