//go:build !sqlite

package storage

import (
	"fmt"

	"gramforge/internal/fault"
)

func newSQLiteStore(_ string) (Store, error) {
	return nil, fmt.Errorf("%w: sqlite backend unavailable in this build; rebuild with -tags sqlite", fault.ErrConfiguration)
}
