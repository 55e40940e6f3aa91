//go:build !linux || !cgo

package gpu

func initNVML() (Interface, error) {
	return nil, ErrUnavailable
}
