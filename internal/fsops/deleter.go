package fsops

// Deleter abstracts the two removal primitives.
// Remove deletes a single non-directory entry; RemoveAll deletes a directory tree.
// Enables substituting faulty primitives in tests.
type Deleter interface {
	Remove(path string) error
	RemoveAll(path string) error
}
