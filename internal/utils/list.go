package utils

// UniqueStrings keeps the first occurrence of every non-empty value.
func UniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))

	for _, v := range values {
		if v == "" {
			continue
		}
		if _, exists := seen[v]; !exists {
			seen[v] = struct{}{}
			unique = append(unique, v)
		}
	}

	return unique
}

func FirstN[T any](values []T, n int) []T {
	if n < 0 {
		n = 0
	}
	if len(values) <= n {
		return values
	}
	return values[:n]
}

// Difference returns the values not present in exclude, keeping order.
func Difference(values, exclude []string) []string {
	skip := make(map[string]struct{}, len(exclude))
	for _, v := range exclude {
		skip[v] = struct{}{}
	}
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := skip[v]; !ok {
			result = append(result, v)
		}
	}
	return result
}
