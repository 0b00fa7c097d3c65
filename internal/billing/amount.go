package billing

import "fmt"

// FormatAmount renders minor units as rupees, e.g. 1234 -> "₹12.34"
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s₹%d.%02d", sign, minor/100, minor%100)
}
