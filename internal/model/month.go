package model

import (
	"fmt"
	"strings"
	"time"
)

// Month хранит название календарного месяца в том виде, в котором оно хранится в ведомости.
type Month string

// Months перечисляет месяцы в календарном порядке.
var Months = []Month{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// ParseMonth приводит название месяца к каноническому виду без учёта регистра.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	for _, m := range Months {
		if strings.EqualFold(string(m), s) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown month %q", s)
}

// MonthOf возвращает название месяца для указанного времени.
func MonthOf(t time.Time) Month {
	return Months[t.Month()-1]
}

// Number возвращает номер месяца от 1 до 12 или 0 для неизвестного названия.
func (m Month) Number() int {
	for i, v := range Months {
		if v == m {
			return i + 1
		}
	}
	return 0
}

// Short возвращает трёхбуквенное сокращение месяца.
func (m Month) Short() string {
	if len(m) < 3 {
		return string(m)
	}
	return string(m[:3])
}
