package templating

import (
	"math/rand/v2"
	"reflect"
)

// repeat returns the integers 0..count-1 for use with range, capped at
// MaxRepeat.
func (tm *TemplateManager) repeat(count int) []int {
	count = clamp(count, tm.config.MaxRepeat)
	s := make([]int, count)
	for i := range s {
		s[i] = i
	}
	return s
}

// list returns its arguments as a slice.
func list(args ...any) []any {
	return args
}

// randomChoice returns a random element of a slice, or nil for anything else.
func randomChoice(slice any) any {
	val := reflect.ValueOf(slice)
	if val.Kind() != reflect.Slice || val.Len() == 0 {
		return nil
	}
	return val.Index(rand.IntN(val.Len())).Interface()
}

// randomInt returns a random integer in [lo, hi).
func randomInt(lo, hi int) int {
	if lo >= hi {
		return lo
	}
	return rand.IntN(hi-lo) + lo
}

func add(a, b int) int { return a + b }

func sub(a, b int) int { return a - b }

func mult(a, b int) int { return a * b }

// div returns a / b, or 0 when b is 0.
func div(a, b int) int {
	if b == 0 {
		return 0
	}
	return a / b
}

// mod returns a % b, or 0 when b is 0.
func mod(a, b int) int {
	if b == 0 {
		return 0
	}
	return a % b
}

func maxInt(a, b int) int { return max(a, b) }

func minInt(a, b int) int { return min(a, b) }

func inc(i int) int { return i + 1 }

func dec(i int) int { return i - 1 }

// isSet reports whether val is non-nil and not its zero value.
func isSet(val any) bool {
	v := reflect.ValueOf(val)
	if !v.IsValid() {
		return false
	}
	return !v.IsZero()
}
