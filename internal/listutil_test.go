package internal

import (
	"net/http/httptest"
	"testing"
)

func TestParseListParams(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantLimit  int
		wantOffset int
		wantQ      string
		wantSort   string
	}{
		{"defaults", "/items", 50, 0, "", ""},
		{"explicit limit and offset", "/items?limit=10&offset=20", 10, 20, "", ""},
		{"limit capped at 200", "/items?limit=5000", 200, 0, "", ""},
		{"zero limit ignored", "/items?limit=0", 50, 0, "", ""},
		{"negative limit ignored", "/items?limit=-5", 50, 0, "", ""},
		{"negative offset ignored", "/items?offset=-1", 50, 0, "", ""},
		{"garbage values ignored", "/items?limit=abc&offset=xyz", 50, 0, "", ""},
		{"search and sort trimmed", "/items?q=%20laptop%20&sort=%20-name%20", 50, 0, "laptop", "-name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			p := parseListParams(r)
			if p.limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", p.limit, tt.wantLimit)
			}
			if p.offset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", p.offset, tt.wantOffset)
			}
			if p.q != tt.wantQ {
				t.Errorf("q = %q, want %q", p.q, tt.wantQ)
			}
			if p.sort != tt.wantSort {
				t.Errorf("sort = %q, want %q", p.sort, tt.wantSort)
			}
		})
	}
}

func TestBuildOrderBy(t *testing.T) {
	allowed := map[string]string{
		"id":         "id",
		"name":       "name",
		"created_at": "created_at",
	}

	tests := []struct {
		name string
		sort string
		want string
	}{
		{"empty defaults to id", "", " ORDER BY id ASC"},
		{"single ascending", "name", " ORDER BY name ASC"},
		{"single descending", "-name", " ORDER BY name DESC"},
		{"multiple keys", "name,-created_at", " ORDER BY name ASC, created_at DESC"},
		{"unknown key skipped", "evil;DROP TABLE", " ORDER BY id ASC"},
		{"mix of known and unknown", "bogus,name", " ORDER BY name ASC"},
		{"whitespace tolerated", " name , -id ", " ORDER BY name ASC, id DESC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildOrderBy(tt.sort, allowed); got != tt.want {
				t.Errorf("buildOrderBy(%q) = %q, want %q", tt.sort, got, tt.want)
			}
		})
	}
}

func TestBuildOrderByWithoutIDKey(t *testing.T) {
	allowed := map[string]string{"name": "name"}
	if got := buildOrderBy("", allowed); got != " ORDER BY id ASC" {
		t.Errorf("Expected literal id fallback, got %q", got)
	}
}
