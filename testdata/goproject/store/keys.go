package store

import "sort"

// Keys returns the stored keys in sorted order.
func (s Store) Keys() []string {
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Delete removes the entry for the given key.
func (s *Store) Delete(key string) {
	delete(s.data, key)
}
