package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseIDs(t *testing.T) {
	tests := []struct {
		in      string
		want    []int64
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "7", want: []int64{7}},
		{in: " 1, 2 ,,3", want: []int64{1, 2, 3}},
		{in: "1,x", wantErr: true},
		{in: "0", wantErr: true},
		{in: "-4", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseIDs(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseIDs(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseIDs(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}
