package hdf5

import (
	"errors"
	"reflect"
	"testing"
)

func TestPaths(t *testing.T) {
	tests := []struct {
		in    string
		parts []string
		clean string
	}{
		{"/", nil, "/"},
		{"", nil, "/"},
		{"/exchange/data", []string{"exchange", "data"}, "/exchange/data"},
		{"exchange//data/", []string{"exchange", "data"}, "/exchange/data"},
		{"./a/./b", []string{"a", "b"}, "/a/b"},
	}
	for _, tt := range tests {
		if got := SplitPath(tt.in); !reflect.DeepEqual(got, tt.parts) {
			t.Errorf("SplitPath(%q) = %v, want %v", tt.in, got, tt.parts)
		}
		if got := CleanPath(tt.in); got != tt.clean {
			t.Errorf("CleanPath(%q) = %q, want %q", tt.in, got, tt.clean)
		}
	}

	if got := JoinPath("/", "a"); got != "/a" {
		t.Errorf("JoinPath root = %q", got)
	}
	if got := JoinPath("/a/", "b"); got != "/a/b" {
		t.Errorf("JoinPath = %q", got)
	}
}

func TestAttrPath(t *testing.T) {
	obj, attr, err := ParseAttrPath("exchange/data@units")
	if err != nil || obj != "/exchange/data" || attr != "units" {
		t.Errorf("ParseAttrPath = %q, %q, %v", obj, attr, err)
	}
	if got := JoinAttrPath("exchange/data", "units"); got != "/exchange/data@units" {
		t.Errorf("JoinAttrPath = %q", got)
	}
	for _, bad := range []string{"noattr", "/data@"} {
		if _, _, err := ParseAttrPath(bad); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("ParseAttrPath(%q) = %v, want ErrInvalidPath", bad, err)
		}
	}
}
