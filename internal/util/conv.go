package util

import (
	"strconv"
	"strings"
)

// ParseLimit 解析分页条数，空字符串返回 fallback
func ParseLimit(s string, fallback int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, ErrInvalidLimit
	}
	return n, nil
}
