package tree

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAddress is returned when an address path cannot be parsed.
var ErrInvalidAddress = errors.New("invalid address path")

// Address locates a node by its index at every level, starting with the
// index among the top-level nodes.
//
// Its text form is "[i0].children[i1].children[i2]", which is what gets
// stored in configuration as the remote root.
type Address []int

// String renders the address in its text form.
func (a Address) String() string {
	var b strings.Builder
	for i, idx := range a {
		if i > 0 {
			b.WriteString(".children")
		}
		fmt.Fprintf(&b, "[%d]", idx)
	}
	return b.String()
}

// Child returns a new address pointing at child i of a.
func (a Address) Child(i int) Address {
	out := make(Address, len(a)+1)
	copy(out, a)
	out[len(a)] = i
	return out
}

// ParseAddress parses the text form of an address path.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	var addr Address
	rest := s
	for first := true; rest != ""; first = false {
		if !first {
			if !strings.HasPrefix(rest, ".children") {
				return nil, fmt.Errorf("%w: expected .children in %q", ErrInvalidAddress, s)
			}
			rest = rest[len(".children"):]
		}
		if !strings.HasPrefix(rest, "[") {
			return nil, fmt.Errorf("%w: expected [ in %q", ErrInvalidAddress, s)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated index in %q", ErrInvalidAddress, s)
		}
		idx, err := strconv.Atoi(rest[1:end])
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("%w: bad index %q in %q", ErrInvalidAddress, rest[1:end], s)
		}
		addr = append(addr, idx)
		rest = rest[end+1:]
	}
	return addr, nil
}

// Resolve walks addr through nodes and returns the node it designates.
// The second result is false when the address does not fit the tree.
func Resolve[N Branch[N]](nodes []N, addr Address) (N, bool) {
	var zero N
	if len(addr) == 0 {
		return zero, false
	}

	level := nodes
	for depth, idx := range addr {
		if idx < 0 || idx >= len(level) {
			return zero, false
		}
		node := level[idx]
		if depth == len(addr)-1 {
			return node, true
		}
		children, ok := node.ChildNodes()
		if !ok {
			return zero, false
		}
		level = children
	}
	return zero, false
}
