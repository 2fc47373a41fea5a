package search

import "testing"

func TestCalculateTotalPages(t *testing.T) {
	tests := []struct {
		totalItems int
		pageSize   int
		want       int
	}{
		{100, 20, 5},
		{101, 20, 6},
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{-3, 20, 0},
		{45, 0, 3}, // default page size
	}

	for _, tt := range tests {
		if got := CalculateTotalPages(tt.totalItems, tt.pageSize); got != tt.want {
			t.Errorf("CalculateTotalPages(%d, %d) = %d, want %d", tt.totalItems, tt.pageSize, got, tt.want)
		}
	}
}

func TestValidatePageNumber(t *testing.T) {
	tests := []struct {
		page       int
		totalPages int
		want       int
	}{
		{0, 5, 1},
		{6, 5, 5},
		{3, 5, 3},
		{-2, 5, 1},
		{4, 0, 1},
		{1, 0, 1},
	}

	for _, tt := range tests {
		if got := ValidatePageNumber(tt.page, tt.totalPages); got != tt.want {
			t.Errorf("ValidatePageNumber(%d, %d) = %d, want %d", tt.page, tt.totalPages, got, tt.want)
		}
	}
}

func TestPagination_WithTotals(t *testing.T) {
	p := Pagination{Page: 7, PageSize: 20}.WithTotals(101)
	want := Pagination{Page: 6, PageSize: 20, TotalItems: 101, TotalPages: 6}
	if p != want {
		t.Errorf("WithTotals(101) = %+v, want %+v", p, want)
	}

	p = Pagination{Page: 3, PageSize: 20, TotalItems: 60, TotalPages: 3}.WithTotals(0)
	if p.Page != 1 || p.TotalPages != 0 {
		t.Errorf("WithTotals(0) = %+v, want page 1 of 0", p)
	}
}
