package utils

// HashToIndex maps s onto [0, mod) using a 31-multiplier string hash.
func HashToIndex(s string, mod int) int {
	if mod <= 1 {
		return 0
	}
	var h uint32
	for _, c := range []byte(s) {
		h = h*31 + uint32(c)
	}
	return int(h % uint32(mod))
}
