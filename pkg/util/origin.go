package utils

func Contains[T comparable](needle T, haystack []T) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// CheckOrigin applies a deny list, then either allows everything or only the
// allow list.
func CheckOrigin(origin string, allowAll bool, allowlist []string, denylist []string) bool {
	if Contains(origin, denylist) {
		return false
	}

	if allowAll {
		return true
	}

	return Contains(origin, allowlist)
}
