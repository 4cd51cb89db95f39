package types

// DefaultMap is a generic map wrapper that returns default values for
// missing keys, avoiding explicit existence checks at every call site.
//
// Example:
//
//	m := NewDefaultMap[string](func() int { return 0 })
//	count := m.Get("key") // returns 0 if "key" is not yet in the map
type DefaultMap[K comparable, V any] struct {
	data        map[K]V  // underlying key-value storage
	defaultFunc func() V // produces default values for missing keys
}

// NewDefaultMap creates a new DefaultMap whose missing keys are initialized
// by defaultFunc.
func NewDefaultMap[K comparable, V any](defaultFunc func() V) DefaultMap[K, V] {
	return DefaultMap[K, V]{
		data:        make(map[K]V),
		defaultFunc: defaultFunc,
	}
}

// Get retrieves the value associated with the given key. If the key is not
// present, the default function is invoked, its result stored under the key,
// and that value returned.
func (d *DefaultMap[K, V]) Get(key K) V {
	val, ok := d.data[key]
	if ok {
		return val
	}

	val = d.defaultFunc()
	d.data[key] = val
	return val
}

// Set assigns a value to the given key.
func (d *DefaultMap[K, V]) Set(key K, val V) {
	d.data[key] = val
}

// ToMap returns the underlying map for iteration or bulk operations.
func (d *DefaultMap[K, V]) ToMap() map[K]V {
	return d.data
}
