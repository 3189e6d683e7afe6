package authflow

import "sort"

// FieldErrors maps a field key to a user-facing message. A flow hands out
// copies; mutating one never changes the flow.
type FieldErrors map[string]string

// Get returns the message for field, or "".
func (f FieldErrors) Get(field string) string {
	return f[field]
}

// Has reports whether field carries an error.
func (f FieldErrors) Has(field string) bool {
	_, ok := f[field]
	return ok
}

// Empty reports whether no field carries an error.
func (f FieldErrors) Empty() bool {
	return len(f) == 0
}

// Set attaches msg to field.
func (f FieldErrors) Set(field, msg string) {
	f[field] = msg
}

// Clear removes the error of field.
func (f FieldErrors) Clear(field string) {
	delete(f, field)
}

// Merge copies every entry of other into f, overwriting existing keys.
func (f FieldErrors) Merge(other map[string]string) {
	for k, v := range other {
		f[k] = v
	}
}

// Clone returns an independent copy. Clone of a nil map is an empty map.
func (f FieldErrors) Clone() FieldErrors {
	out := make(FieldErrors, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Keys returns the field keys in sorted order.
func (f FieldErrors) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
