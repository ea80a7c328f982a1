/*
Copyright PD Control Plane Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package registry

// orderedMap preserves insertion order on iteration. Affinity
// tie-breaking and round-robin fallback both depend on a deterministic
// host iteration order; a plain Go map offers none, so every host-keyed
// and port-keyed collection in this package uses this type instead.
type orderedMap[K comparable, V any] struct {
	keys   []K
	values map[K]V
}

func newOrderedMap[K comparable, V any]() *orderedMap[K, V] {
	return &orderedMap[K, V]{values: make(map[K]V)}
}

func (m *orderedMap[K, V]) get(k K) (V, bool) {
	v, ok := m.values[k]
	return v, ok
}

func (m *orderedMap[K, V]) has(k K) bool {
	_, ok := m.values[k]
	return ok
}

// set inserts k if absent (appending to the key order) or overwrites
// its value in place if already present.
func (m *orderedMap[K, V]) set(k K, v V) {
	if _, ok := m.values[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

func (m *orderedMap[K, V]) delete(k K) {
	if _, ok := m.values[k]; !ok {
		return
	}
	delete(m.values, k)
	for i, existing := range m.keys {
		if existing == k {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

func (m *orderedMap[K, V]) len() int { return len(m.keys) }

// at returns the key at position i, taken modulo len(m.keys), and its
// value. Used by round-robin selection over insertion order.
func (m *orderedMap[K, V]) at(i int) (K, V) {
	k := m.keys[i%len(m.keys)]
	return k, m.values[k]
}

// each iterates in insertion order.
func (m *orderedMap[K, V]) each(fn func(k K, v V)) {
	for _, k := range m.keys {
		fn(k, m.values[k])
	}
}
