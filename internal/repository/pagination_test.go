package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginationNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Pagination
		want Pagination
	}{
		{"zero value takes defaults", Pagination{}, Pagination{Offset: 0, Limit: DefaultPageSize}},
		{"negative offset clamped", Pagination{Offset: -5, Limit: 10}, Pagination{Offset: 0, Limit: 10}},
		{"oversized limit capped", Pagination{Limit: 99999}, Pagination{Limit: MaxPageSize}},
		{"valid window untouched", Pagination{Offset: 20, Limit: 10}, Pagination{Offset: 20, Limit: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestPaginate(t *testing.T) {
	all := []string{"a", "b", "c", "d", "e"}

	t.Run("middle window", func(t *testing.T) {
		res := Paginate(all, Pagination{Offset: 1, Limit: 2})
		assert.Equal(t, []string{"b", "c"}, res.Items)
		assert.Equal(t, 5, res.TotalMatching)
		assert.True(t, res.HasMore)
	})

	t.Run("window past the end", func(t *testing.T) {
		res := Paginate(all, Pagination{Offset: 10, Limit: 2})
		assert.Empty(t, res.Items)
		assert.Equal(t, 5, res.TotalMatching)
		assert.False(t, res.HasMore)
	})

	t.Run("final partial window", func(t *testing.T) {
		res := Paginate(all, Pagination{Offset: 4, Limit: 10})
		assert.Equal(t, []string{"e"}, res.Items)
		assert.False(t, res.HasMore)
	})

	t.Run("items are a copy", func(t *testing.T) {
		res := Paginate(all, Pagination{Offset: 0, Limit: 1})
		res.Items[0] = "mutated"
		assert.Equal(t, "a", all[0])
	})
}
