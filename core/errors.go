package core

import (
	"errors"
	"fmt"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrNodeExists   = errors.New("node already exists")
	ErrLinkNotFound = errors.New("link not found")
	ErrNoPath       = errors.New("no path")
)

// NodeNotFoundError reports an unregistered node id. It matches ErrNodeNotFound
// under errors.Is.
type NodeNotFoundError struct {
	ID string
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("node not found: %s", e.ID)
}

func (e *NodeNotFoundError) Is(target error) bool {
	return target == ErrNodeNotFound
}

// NoPathError reports that no finite-cost path joins Source and Dest.
type NoPathError struct {
	Source string
	Dest   string
}

func (e *NoPathError) Error() string {
	return fmt.Sprintf("no path found between %s and %s", e.Source, e.Dest)
}

func (e *NoPathError) Is(target error) bool {
	return target == ErrNoPath
}

// LinkNotFoundError reports that no edge joins From and To in either direction.
type LinkNotFoundError struct {
	From string
	To   string
}

func (e *LinkNotFoundError) Error() string {
	return fmt.Sprintf("link not found between %s and %s", e.From, e.To)
}

func (e *LinkNotFoundError) Is(target error) bool {
	return target == ErrLinkNotFound
}
