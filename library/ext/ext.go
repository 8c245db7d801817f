package ext

import (
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/r3labs/diff/v3"
	"golang.org/x/exp/constraints"
)

// Clamp bounds v into [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DeepCopy copies src into dst, duplicating nested pointers, maps and slices.
func DeepCopy(dst, src any) error {
	return copier.CopyWithOption(dst, src, copier.Option{DeepCopy: true, IgnoreEmpty: false})
}

// DiffLog renders the field level changes between a and b, one per line.
// An empty string means the values are equal.
func DiffLog(a, b any) (string, error) {
	changes, err := diff.Diff(a, b)
	if err != nil {
		return "", err
	}
	s := ""
	for _, c := range changes {
		s += fmt.Sprintf("%s %v: %v -> %v\n", c.Type, c.Path, c.From, c.To)
	}
	return s, nil
}
