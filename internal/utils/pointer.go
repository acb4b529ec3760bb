package utils

// Ptr returns a pointer to the passed value.
func Ptr[T any](t T) *T {
	return &t
}

func Get[T any](t *T) T {
	if t == nil {
		var v T
		return v
	}
	return *t
}

// GetOr dereferences t, falling back to def when t is nil.
func GetOr[T any](t *T, def T) T {
	if t == nil {
		return def
	}
	return *t
}
