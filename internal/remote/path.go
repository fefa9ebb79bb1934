package remote

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPath is returned for property paths that cannot be parsed.
var ErrInvalidPath = errors.New("invalid property path")

// segment is one step of a property path: an array index or an object key.
type segment struct {
	key   string
	index int
	isIdx bool
}

// parsePropertyPath splits paths such as "[0].children[2].children" into
// segments. An empty path has no segments and designates the whole document.
func parsePropertyPath(p string) ([]segment, error) {
	var segs []segment
	rest := p
	for rest != "" {
		switch {
		case rest[0] == '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated index in %q", ErrInvalidPath, p)
			}
			idx, err := strconv.Atoi(rest[1:end])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("%w: bad index %q in %q", ErrInvalidPath, rest[1:end], p)
			}
			segs = append(segs, segment{index: idx, isIdx: true})
			rest = rest[end+1:]

		default:
			if rest[0] == '.' {
				if len(segs) == 0 {
					return nil, fmt.Errorf("%w: leading dot in %q", ErrInvalidPath, p)
				}
				rest = rest[1:]
			} else if len(segs) > 0 {
				return nil, fmt.Errorf("%w: missing dot before %q in %q", ErrInvalidPath, rest, p)
			}
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			if end == 0 {
				return nil, fmt.Errorf("%w: empty key in %q", ErrInvalidPath, p)
			}
			segs = append(segs, segment{key: rest[:end]})
			rest = rest[end:]
		}
	}
	return segs, nil
}

// gjsonPath renders segments in the path syntax shared by gjson and sjson.
func gjsonPath(segs []segment) string {
	parts := make([]string, len(segs))
	for i, s := range segs {
		if s.isIdx {
			parts[i] = strconv.Itoa(s.index)
		} else {
			parts[i] = escapeKey(s.key)
		}
	}
	return strings.Join(parts, ".")
}

func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%', ':':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
