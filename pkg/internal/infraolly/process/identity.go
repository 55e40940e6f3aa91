package process

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrPID            = attribute.Key("process.pid")
	AttrExecutableName = attribute.Key("process.executable.name")
	AttrExecutablePath = attribute.Key("process.executable.path")
	AttrCommand        = attribute.Key("process.command")
)

// Identity of an observed process. It is computed once per observation session, from the first
// successful read, and never recomputed even if e.g. the command line of the process changes.
type Identity struct {
	PID            int32
	ExecutableName string
	ExecutablePath string
	// Command line arguments, joined by spaces
	Command string

	attrs attribute.Set
}

// BuildIdentity reads the identity of a resolved process from the last refresh of the source.
// Fields without OS data are left empty.
func BuildIdentity(h Handle, src Source) (*Identity, error) {
	if !h.Resolved() {
		return nil, fmt.Errorf("%w: pid %d has not been resolved", ErrIdentityUnavailable, h.PID())
	}
	c, ok := src.Read(h.PID())
	if !ok {
		return nil, fmt.Errorf("%w: can't read pid %d", ErrIdentityUnavailable, h.PID())
	}
	id := &Identity{
		PID:            h.PID(),
		ExecutableName: c.ExecutableName,
		ExecutablePath: c.ExecutablePath,
		Command:        strings.Join(c.CommandArgs, " "),
	}
	id.attrs = attribute.NewSet(
		AttrPID.Int64(int64(id.PID)),
		AttrExecutableName.String(id.ExecutableName),
		AttrExecutablePath.String(id.ExecutablePath),
		AttrCommand.String(id.Command),
	)
	return id, nil
}

// Attributes returns the cached attribute set of the identity
func (id *Identity) Attributes() attribute.Set {
	return id.attrs
}

// With returns a new set containing the identity attributes plus the extra ones.
func (id *Identity) With(extra ...attribute.KeyValue) attribute.Set {
	kvs := append(id.attrs.ToSlice(), extra...)
	return attribute.NewSet(kvs...)
}
