package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrInvalidName = errors.New("invalid service name")

// Service is a live handle to a registered service.
type Service interface {
	Name() string
	// Dump writes a diagnostic text of a service to w. args are forwarded
	// unchanged. Implementations are expected to return once ctx is done,
	// but callers must not rely on it.
	Dump(ctx context.Context, w io.Writer, args []string) error
}

// Registry is a single namespace of services.
type Registry interface {
	// List returns all registered names in registry order.
	List(ctx context.Context) ([]string, error)
	// Check returns a handle if the service is registered and reachable.
	Check(ctx context.Context, name string) (Service, bool)
}

// Dumper is implemented by processes exposing their state over a Server.
type Dumper interface {
	Dump(ctx context.Context, w io.Writer, args []string) error
}

type DumperFunc func(ctx context.Context, w io.Writer, args []string) error

func (f DumperFunc) Dump(ctx context.Context, w io.Writer, args []string) error {
	return f(ctx, w, args)
}

// CallError is a failure reported by the remote side of a dump
type CallError struct {
	Status  int
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

func ValidName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
