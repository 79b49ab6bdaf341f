package quotefeed

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal разбирает цену из прайс-листа. Поддерживаются "1.234,56", "1234,56" и "1234.56".
func ParseDecimal(cell string) (decimal.Decimal, error) {
	cell = strings.TrimSpace(cell)
	cell = strings.TrimSuffix(strings.TrimSuffix(cell, "TL"), "₺")
	cell = strings.ReplaceAll(strings.TrimSpace(cell), " ", "")
	if cell == "" {
		return decimal.Zero, nil
	}
	if strings.Contains(cell, ",") {
		cell = strings.ReplaceAll(cell, ".", "")
		cell = strings.Replace(cell, ",", ".", 1)
	}
	d, err := decimal.NewFromString(cell)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q", cell)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %q", cell)
	}
	return d, nil
}

// ParseStock разбирает остаток; пустая ячейка - ноль, дробная часть отбрасывается.
func ParseStock(cell string) (int, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, nil
	}
	cell = strings.TrimLeft(cell, ">+")
	if i := strings.IndexAny(cell, ",."); i >= 0 {
		cell = cell[:i]
	}
	n, err := strconv.Atoi(cell)
	if err != nil {
		return 0, fmt.Errorf("invalid stock %q", cell)
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}
