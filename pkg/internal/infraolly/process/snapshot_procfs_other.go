//go:build !linux

package process

import "errors"

func newProcFSSource(_ *SourceConfig) (Source, error) {
	return nil, errors.New("the procfs source is only available on Linux")
}
