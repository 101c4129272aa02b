package cache

import (
	"fmt"
	"strings"
)

// DefaultKeyPrefix is the leading segment of every namespaced key.
const DefaultKeyPrefix = "tenant"

// keyDelimiter separates the prefix, tenant and logical key segments.
const keyDelimiter = ":"

var (
	tenantEscaper   = strings.NewReplacer("%", "%25", ":", "%3A")
	tenantUnescaper = strings.NewReplacer("%3A", ":", "%25", "%")
)

// KeyCodec derives namespaced keys of the form {prefix}:{tenant}:{logicalKey}.
//
// The tenant segment is escaped so it never contains the delimiter, which makes the
// encoding collision free: two tenants sharing a logical key always produce distinct
// namespaced keys, and the first delimiter after the prefix always ends the tenant.
type KeyCodec struct {
	prefix string
}

// NewKeyCodec returns a codec using prefix, or DefaultKeyPrefix when prefix is empty.
func NewKeyCodec(prefix string) KeyCodec {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return KeyCodec{prefix: prefix}
}

// Prefix returns the codec's leading segment.
func (c KeyCodec) Prefix() string {
	if c.prefix == "" {
		return DefaultKeyPrefix
	}
	return c.prefix
}

// Encode builds the namespaced key for tenantID and logicalKey.
func (c KeyCodec) Encode(tenantID, logicalKey string) string {
	return c.TenantPrefix(tenantID) + logicalKey
}

// TenantPrefix returns the prefix shared by every key of tenantID, delimiter included.
func (c KeyCodec) TenantPrefix(tenantID string) string {
	return c.Prefix() + keyDelimiter + tenantEscaper.Replace(tenantID) + keyDelimiter
}

// Decode splits a namespaced key back into tenant and logical key.
func (c KeyCodec) Decode(key string) (tenantID, logicalKey string, err error) {
	head := c.Prefix() + keyDelimiter
	if !strings.HasPrefix(key, head) {
		return "", "", fmt.Errorf("%w: %q lacks prefix %q", ErrInvalidKeyFormat, key, head)
	}

	rest := key[len(head):]
	idx := strings.Index(rest, keyDelimiter)
	if idx < 0 {
		return "", "", fmt.Errorf("%w: %q has no tenant delimiter", ErrInvalidKeyFormat, key)
	}

	escaped := rest[:idx]
	if !validEscapes(escaped) {
		return "", "", fmt.Errorf("%w: %q has a malformed tenant segment", ErrInvalidKeyFormat, key)
	}

	return tenantUnescaper.Replace(escaped), rest[idx+len(keyDelimiter):], nil
}

// validEscapes reports whether every '%' in s starts one of the two escapes Encode emits.
func validEscapes(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			continue
		}
		if i+3 > len(s) {
			return false
		}
		switch s[i+1 : i+3] {
		case "25", "3A":
			i += 2
		default:
			return false
		}
	}
	return true
}
