package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClampPage(t *testing.T) {
	cases := []struct {
		name              string
		page, perPage     int
		wantPage, wantPer int
	}{
		{"defaults", 0, 0, 1, 20},
		{"negative page", -5, 10, 1, 10},
		{"oversized per page", 1, 500, 1, 100},
		{"in range untouched", 3, 50, 3, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, perPage := ClampPage(tc.page, tc.perPage)
			require.Equal(t, tc.wantPage, page)
			require.Equal(t, tc.wantPer, perPage)
		})
	}
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 20, 45)
	require.Equal(t, 3, p.TotalPages)

	p = NewPagination(1, 20, 0)
	require.Zero(t, p.TotalPages)
}
