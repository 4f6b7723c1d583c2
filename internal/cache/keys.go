package cache

// DefaultNamespace is used when a caller does not specify one.
const DefaultNamespace = "default"

// renderKey builds the stored key string as prefix:namespace:rawKey.
// The same logical key always renders to the same string.
func renderKey(prefix, namespace, rawKey string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return prefix + ":" + namespace + ":" + rawKey
}
