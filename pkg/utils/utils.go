package utils

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// ParseUint 路径参数转 id，非法返回 false
func ParseUint(s string) (uint, bool) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

// FormatTWD 新台币整数元显示，如 NT$1,250
func FormatTWD(amount int64) string {
	s := decimal.NewFromInt(amount).StringFixed(0)
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg, s = true, s[1:]
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-NT$" + string(out)
	}
	return "NT$" + string(out)
}
