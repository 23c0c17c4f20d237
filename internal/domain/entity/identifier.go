package entity

import (
	"strconv"
	"strings"

	"codegraph-backend/internal/errors"
)

// Delimiter separates identifier components. No component may contain it.
const Delimiter = ":"

// IDComponents are the parts of a canonical identifier
// {kind}:{file}:{name}:{line} with an optional trailing :{suffix}
// disambiguating overloads.
type IDComponents struct {
	Kind   Kind
	File   string
	Name   string
	Line   int
	Suffix string
}

// NewID builds a canonical identifier. Paths are normalized to forward
// slashes and the kind is lowercased. Lines are 1-based.
func NewID(kind Kind, file, name string, line int, suffix ...string) (string, error) {
	k := Kind(strings.ToLower(string(kind)))
	if !k.Valid() {
		return "", errors.Newf(errors.KindInvalidIdentifier, "unknown kind %q", kind)
	}
	f := NormalizePath(file)
	if err := checkComponent("file", f); err != nil {
		return "", err
	}
	if err := checkComponent("name", name); err != nil {
		return "", err
	}
	if line < 1 {
		return "", errors.Newf(errors.KindInvalidIdentifier, "line must be >= 1, got %d", line)
	}
	parts := []string{string(k), f, name, strconv.Itoa(line)}
	if len(suffix) > 0 && suffix[0] != "" {
		if err := checkComponent("suffix", suffix[0]); err != nil {
			return "", err
		}
		parts = append(parts, suffix[0])
	}
	return strings.Join(parts, Delimiter), nil
}

// ParseID splits a canonical identifier back into its components.
func ParseID(id string) (IDComponents, error) {
	parts := strings.Split(id, Delimiter)
	if len(parts) != 4 && len(parts) != 5 {
		return IDComponents{}, errors.Newf(errors.KindInvalidIdentifier,
			"identifier %q must have 4 or 5 components, got %d", id, len(parts))
	}
	kind := Kind(parts[0])
	if !kind.Valid() {
		return IDComponents{}, errors.Newf(errors.KindInvalidIdentifier, "unknown kind %q in %q", parts[0], id)
	}
	for i, label := range []string{"kind", "file", "name"} {
		if parts[i] == "" {
			return IDComponents{}, errors.Newf(errors.KindInvalidIdentifier, "empty %s in %q", label, id)
		}
	}
	line, err := strconv.Atoi(parts[3])
	if err != nil || line < 1 {
		return IDComponents{}, errors.Newf(errors.KindInvalidIdentifier, "bad line %q in %q", parts[3], id)
	}
	c := IDComponents{Kind: kind, File: parts[1], Name: parts[2], Line: line}
	if len(parts) == 5 {
		if parts[4] == "" {
			return IDComponents{}, errors.Newf(errors.KindInvalidIdentifier, "empty suffix in %q", id)
		}
		c.Suffix = parts[4]
	}
	return c, nil
}

// NormalizePath converts path separators to forward slashes and strips a
// leading "./" so identifiers are stable across platforms.
func NormalizePath(file string) string {
	f := strings.ReplaceAll(file, "\\", "/")
	return strings.TrimPrefix(f, "./")
}

func checkComponent(label, v string) error {
	if v == "" {
		return errors.Newf(errors.KindInvalidIdentifier, "empty %s component", label)
	}
	if strings.Contains(v, Delimiter) {
		return errors.Newf(errors.KindInvalidIdentifier, "%s component %q contains %q", label, v, Delimiter)
	}
	return nil
}
