package cache

import "strings"

// Matches reports whether pattern occurs in logicalKey. Matching is a case-sensitive
// substring test; there is no wildcard syntax. The empty pattern matches every key.
func Matches(logicalKey, pattern string) bool {
	return strings.Contains(logicalKey, pattern)
}

// SelectForInvalidation filters keys down to those that belong to tenantID and whose
// logical key contains pattern. Keys the codec cannot decode are skipped.
func SelectForInvalidation(codec KeyCodec, tenantID, pattern string, keys []string) []string {
	return selectKeys(codec, tenantID, keys, func(logical string) bool {
		return Matches(logical, pattern)
	})
}

// SelectByPrefix is SelectForInvalidation with a prefix test instead of containment.
// Used where a pattern must not match inside a longer segment, e.g. resource names.
func SelectByPrefix(codec KeyCodec, tenantID, prefix string, keys []string) []string {
	return selectKeys(codec, tenantID, keys, func(logical string) bool {
		return strings.HasPrefix(logical, prefix)
	})
}

func selectKeys(codec KeyCodec, tenantID string, keys []string, match func(string) bool) []string {
	var selected []string
	for _, key := range keys {
		tenant, logical, err := codec.Decode(key)
		if err != nil || tenant != tenantID {
			continue
		}
		if match(logical) {
			selected = append(selected, key)
		}
	}
	return selected
}
