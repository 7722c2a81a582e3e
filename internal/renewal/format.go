package renewal

import (
	"fmt"
	"time"
)

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// LongDate renders a date as "15 de junio de 2025".
func LongDate(t time.Time) string {
	y, m, d := t.Date()
	return fmt.Sprintf("%d de %s de %d", d, spanishMonths[m-1], y)
}
