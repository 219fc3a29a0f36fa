package ingestion

import "testing"

func TestCollectionName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"jasmine/books.json", "books.json"},
		{"/var/data/collections/pages.json", "pages.json"},
		{"books.json", "books.json"},
		{"dir/", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CollectionName(tt.path); got != tt.want {
			t.Errorf("CollectionName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
