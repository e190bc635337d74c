package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1, "1 B"},
		{1023, "1023 B"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{100 * 1024, "100 KB"},
		{400 * 1024 * 1024, "400 MB"},
		{500 * 1024 * 1024, "500 MB"},
		{1536 * 1024 * 1024, "1.5 GB"},
		{5 * 1024 * 1024 * 1024, "5 GB"},
		{1024 * 1024 * 1024 * 1024, "1 TB"},
		{2048 * 1024 * 1024 * 1024 * 1024, "2048 TB"},
		{1234567, "1.18 MB"},
		{-100 * 1024 * 1024, "-100 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in), "FormatBytes(%d)", tt.in)
	}
}
