package persist

// Persister handles I/O for a specific document type using a Codec.
type Persister[T any] struct {
	basename string
	codec    Codec
}

// NewPersister creates a persister with the given basename and codec.
func NewPersister[T any](basename string, codec Codec) *Persister[T] {
	return &Persister[T]{
		basename: basename,
		codec:    codec,
	}
}

// Save writes state to dir and returns the written path.
func (p *Persister[T]) Save(dir string, state *T) (string, error) {
	return SaveState(dir, p.basename, p.codec, state)
}

// Load reads the document back from dir.
func (p *Persister[T]) Load(dir string) (*T, error) {
	var state T

	err := LoadState(dir, p.basename, p.codec, &state)
	if err != nil {
		return nil, err
	}

	return &state, nil
}
