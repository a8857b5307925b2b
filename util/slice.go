package util

import (
	"golang.org/x/exp/slices"
)

// AppendUnique adds v to src unless it is already present.
func AppendUnique[T comparable](src []T, v T) []T {
	if slices.Contains(src, v) {
		return src
	}
	return append(src, v)
}
