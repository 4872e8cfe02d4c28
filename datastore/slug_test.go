package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello-world"},
		{"  Go 1.24: what's new?  ", "go-1-24-what-s-new"},
		{"Zażółć gęślą jaźń!", "zazolc-gesla-jazn"},
		{"Łódź", "lodz"},
		{"Crème brûlée", "creme-brulee"},
		{"already-a-slug", "already-a-slug"},
		{"---", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestSlugifyIsIdempotent(t *testing.T) {
	for _, s := range []string{"Hello World", "Zażółć gęślą jaźń!", "a  b"} {
		once := Slugify(s)
		assert.Equal(t, once, Slugify(once))
	}
}
