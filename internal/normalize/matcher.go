package normalize

import "regexp"

// Matcher decides whether the resource at index (of total) named name is
// the main resource.
type Matcher func(index, total int, name string) bool

// MatchAll matches every resource.
func MatchAll() Matcher {
	return func(int, int, string) bool { return true }
}

// MatchIndex matches the resource at position i. Negative positions count
// from the end, so -1 is the last resource.
func MatchIndex(i int) Matcher {
	return func(index, total int, _ string) bool {
		if i < 0 {
			return index == total+i
		}
		return index == i
	}
}

// MatchNames matches resources by exact name.
func MatchNames(names ...string) Matcher {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(_, _ int, name string) bool {
		_, ok := set[name]
		return ok
	}
}

// MatchPattern matches resources whose name matches re.
func MatchPattern(re *regexp.Regexp) Matcher {
	return func(_, _ int, name string) bool { return re.MatchString(name) }
}
