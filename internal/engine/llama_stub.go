//go:build !llama

package engine

// Open fails fast when compiled without the 'llama' build tag. Default builds
// and CI stay CGO-free; tests substitute a fake Handle through Loader.
func Open(weightsPath string, params Params) (Handle, error) {
	return nil, ErrNotBuilt
}
