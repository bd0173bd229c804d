package tempo

import "strings"

// Resolve finds the variable playing the given role among names, which must
// be in the product group's own listing order. Matching is case-insensitive
// and proceeds in three passes:
//
//  1. exact match, earliest candidate wins;
//  2. for each candidate in turn, the first name containing it;
//  3. for each keyword group in turn, the first name containing all of its
//     keywords.
//
// The second return value is false when no pass matched.
func Resolve(names []string, role Role) (string, bool) {
	lower := make([]string, len(names))
	exact := make(map[string]string, len(names))
	for i, n := range names {
		lower[i] = strings.ToLower(n)
		if _, ok := exact[lower[i]]; !ok {
			exact[lower[i]] = n
		}
	}

	for _, c := range role.Candidates {
		if n, ok := exact[strings.ToLower(c)]; ok {
			return n, true
		}
	}
	for _, c := range role.Candidates {
		c = strings.ToLower(c)
		for i, l := range lower {
			if strings.Contains(l, c) {
				return names[i], true
			}
		}
	}
	for _, group := range role.Keywords {
		for i, l := range lower {
			if containsAll(l, group) {
				return names[i], true
			}
		}
	}
	return "", false
}

func containsAll(s string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	for _, k := range keywords {
		if !strings.Contains(s, strings.ToLower(k)) {
			return false
		}
	}
	return true
}
