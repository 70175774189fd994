//go:build !unix

package arena

// NewMapped falls back to a heap-backed arena on platforms without
// anonymous mappings.
func NewMapped(size int) (*Arena, error) {
	return New(size), nil
}
