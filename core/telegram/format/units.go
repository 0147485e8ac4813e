package format

import (
	"fmt"
	"strconv"
	"time"
)

// Plural picks the Russian plural form for n: one (1, 21), few (2-4, 22-24) or many.
func Plural(n int64, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	mod100 := n % 100
	if mod100 >= 11 && mod100 <= 14 {
		return many
	}
	switch n % 10 {
	case 1:
		return one
	case 2, 3, 4:
		return few
	}
	return many
}

// Days renders a day count, e.g. "1 день", "3 дня", "30 дней".
func Days(n int64) string {
	return strconv.FormatInt(n, 10) + " " + Plural(n, "день", "дня", "дней")
}

// DaysFromSeconds renders a duration given in seconds as whole days.
func DaysFromSeconds(sec int64) string {
	return Days(sec / 86400)
}

// Bytes renders a byte count with binary units: "512 Б", "1.50 МБ", "2.00 ГБ".
func Bytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d Б", n)
	}
	units := []string{"КБ", "МБ", "ГБ", "ТБ"}
	value := float64(n) / unit
	i := 0
	for value >= unit && i < len(units)-1 {
		value /= unit
		i++
	}
	return fmt.Sprintf("%.2f %s", value, units[i])
}

// Wait renders a remaining cooldown rounded up to the minute, e.g. "17 ч 59 мин".
func Wait(d time.Duration) string {
	if d <= 0 {
		return "0 мин"
	}
	minutes := int64((d + time.Minute - 1) / time.Minute)
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%d мин", m)
	case m == 0:
		return fmt.Sprintf("%d ч", h)
	}
	return fmt.Sprintf("%d ч %d мин", h, m)
}

// Number renders a float without trailing zeros: 500, 555.5.
func Number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Unlimited is shown in place of a zero traffic limit.
const Unlimited = "ထ"

// Traffic renders a GB limit, or Unlimited for 0.
func Traffic(gb float64) string {
	if gb <= 0 {
		return Unlimited
	}
	return Number(gb)
}
