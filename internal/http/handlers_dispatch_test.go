package http

import (
	"testing"

	"gazeta/internal/model"
)

func TestParseCities(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want []string
		ok   bool
	}{
		{"nil_means_all", nil, nil, true},
		{"all_keyword", "all", nil, true},
		{"empty_string", "", nil, true},
		{"single_city", "ba_acajutiba", []string{"ba_acajutiba"}, true},
		{"city_list", []any{"ba_acajutiba", "sc_florianopolis"}, []string{"ba_acajutiba", "sc_florianopolis"}, true},
		{"mixed_list", []any{"ba_acajutiba", 42}, nil, false},
		{"number", 42, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseCities(tc.in)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestDateRangeOrZero(t *testing.T) {
	if got := dateRangeOrZero(nil); got != (model.DateRange{}) {
		t.Errorf("nil range = %+v", got)
	}
	dr := model.DateRange{Start: "2024-08-01", End: "2024-08-02"}
	if got := dateRangeOrZero(&dr); got != dr {
		t.Errorf("got %+v", got)
	}
}
