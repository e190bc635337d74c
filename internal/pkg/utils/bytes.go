package utils

import (
	"strconv"
	"strings"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes 将字节数格式化为 "{value} {unit}"
// 1024 进制，最多两位小数，去掉末尾多余的 0，例如 1536*1024*1024 -> "1.5 GB"
func FormatBytes(b int64) string {
	if b == 0 {
		return "0 B"
	}
	neg := b < 0
	if neg {
		b = -b
	}

	i := 0
	value := float64(b)
	for value >= 1024 && i < len(byteUnits)-1 {
		value /= 1024
		i++
	}

	s := strconv.FormatFloat(value, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if neg {
		s = "-" + s
	}
	return s + " " + byteUnits[i]
}
