package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph-backend/internal/errors"
)

func TestNewID(t *testing.T) {
	t.Run("canonical form", func(t *testing.T) {
		id, err := NewID(KindFunction, "src/app.py", "handle", 10)
		require.NoError(t, err)
		assert.Equal(t, "function:src/app.py:handle:10", id)
	})

	t.Run("kind is lowercased", func(t *testing.T) {
		id, err := NewID(Kind("Function"), "a.py", "f", 1)
		require.NoError(t, err)
		assert.Equal(t, "function:a.py:f:1", id)
	})

	t.Run("backslash paths normalized", func(t *testing.T) {
		id, err := NewID(KindClass, `pkg\models\user.ts`, "User", 3)
		require.NoError(t, err)
		assert.Equal(t, "class:pkg/models/user.ts:User:3", id)
	})

	t.Run("leading dot-slash stripped", func(t *testing.T) {
		id, err := NewID(KindModule, "./lib/util.js", "util", 1)
		require.NoError(t, err)
		assert.Equal(t, "module:lib/util.js:util:1", id)
	})

	t.Run("suffix disambiguates overloads", func(t *testing.T) {
		id, err := NewID(KindMethod, "svc.go", "Get", 42, "2")
		require.NoError(t, err)
		assert.Equal(t, "method:svc.go:Get:42:2", id)
	})

	invalid := []struct {
		name   string
		kind   Kind
		file   string
		symbol string
		line   int
	}{
		{"empty file", KindFunction, "", "f", 1},
		{"empty name", KindFunction, "a.py", "", 1},
		{"unknown kind", Kind("lambda"), "a.py", "f", 1},
		{"delimiter in name", KindFunction, "a.py", "ns::f", 1},
		{"zero line", KindFunction, "a.py", "f", 0},
		{"negative line", KindFunction, "a.py", "f", -3},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewID(tt.kind, tt.file, tt.symbol, tt.line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.KindInvalidIdentifier))
		})
	}
}

func TestParseID(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		id, err := NewID(KindMethod, "svc/user.go", "Save", 88, "ptr")
		require.NoError(t, err)

		c, err := ParseID(id)
		require.NoError(t, err)
		assert.Equal(t, KindMethod, c.Kind)
		assert.Equal(t, "svc/user.go", c.File)
		assert.Equal(t, "Save", c.Name)
		assert.Equal(t, 88, c.Line)
		assert.Equal(t, "ptr", c.Suffix)
	})

	t.Run("four components", func(t *testing.T) {
		c, err := ParseID("import:main.py:os:2")
		require.NoError(t, err)
		assert.Equal(t, KindImport, c.Kind)
		assert.Empty(t, c.Suffix)
	})

	bad := []string{
		"",
		"function",
		"function:a.py:f",
		"function:a.py:f:notanumber",
		"function:a.py:f:0",
		"widget:a.py:f:1",
		"function:a.py:f:1:2:3",
	}
	for _, id := range bad {
		t.Run("rejects "+id, func(t *testing.T) {
			_, err := ParseID(id)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.KindInvalidIdentifier))
		})
	}
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindFunction, ParseKind("FUNCTION"))
	assert.Equal(t, KindClass, ParseKind(" class "))
	assert.Equal(t, KindOther, ParseKind("decorator"))
	assert.Equal(t, KindOther, ParseKind(""))
}
