package quotefeed

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const (
	ColumnStockCode = "stock_code"
	ColumnName      = "name"
	ColumnPrice     = "price"
	ColumnStock     = "stock"
)

// DefaultColumns - порядок колонок прайс-листа без заголовка.
var DefaultColumns = []string{ColumnStockCode, ColumnName, ColumnPrice, ColumnStock}

type Row struct {
	StockCode string
	Name      string
	Price     decimal.Decimal
	Stock     int
}

type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// Processor отвечает за чтение CSV прайс-листа поставщика.
type Processor struct {
	columns  []string
	encoding encoding.Encoding
}

// NewProcessor создаёт Processor для прайс-листов в Windows-1254.
func NewProcessor() *Processor {
	return &Processor{
		columns:  DefaultColumns,
		encoding: charmap.Windows1254,
	}
}

func (p *Processor) SetNewColumnNaming(columns []string) *Processor {
	if len(columns) == 0 {
		return p
	}
	p.columns = columns
	return p
}

func (p *Processor) SetEncoding(enc encoding.Encoding) *Processor {
	if enc != nil {
		p.encoding = enc
	}
	return p
}

// ProcessCSV читает строки прайс-листа. Строки с ошибками пропускаются и возвращаются отдельно.
func (p *Processor) ProcessCSV(reader io.Reader) ([]Row, []RowError, error) {
	decoder := transform.NewReader(reader, p.encoding.NewDecoder())
	csvReader := csv.NewReader(decoder)
	csvReader.Comma = ';'
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	allRows, err := csvReader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("csv read error: %w", err)
	}
	if len(allRows) == 0 {
		return nil, nil, fmt.Errorf("csv data is empty")
	}

	header := p.columns
	data := allRows
	firstLine := 1
	if p.isHeader(allRows[0]) {
		header = normalizeHeader(allRows[0])
		data = allRows[1:]
		firstLine = 2
	}

	columnMap := make(map[string]int, len(header))
	for i, col := range header {
		columnMap[col] = i
	}
	if _, ok := columnMap[ColumnStockCode]; !ok {
		return nil, nil, fmt.Errorf("column %q is missing", ColumnStockCode)
	}
	if _, ok := columnMap[ColumnPrice]; !ok {
		return nil, nil, fmt.Errorf("column %q is missing", ColumnPrice)
	}

	cell := func(row []string, col string) string {
		if idx, ok := columnMap[col]; ok && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	rows := make([]Row, 0, len(data))
	var rowErrors []RowError
	for i, raw := range data {
		line := firstLine + i
		code := cell(raw, ColumnStockCode)
		if code == "" {
			continue
		}
		price, err := ParseDecimal(cell(raw, ColumnPrice))
		if err != nil {
			rowErrors = append(rowErrors, RowError{Line: line, Err: err})
			continue
		}
		stock, err := ParseStock(cell(raw, ColumnStock))
		if err != nil {
			rowErrors = append(rowErrors, RowError{Line: line, Err: err})
			continue
		}
		rows = append(rows, Row{StockCode: code, Name: cell(raw, ColumnName), Price: price, Stock: stock})
	}
	return rows, rowErrors, nil
}

func (p *Processor) isHeader(row []string) bool {
	normalized := normalizeHeader(row)
	for _, col := range p.columns {
		for _, c := range normalized {
			if c == col {
				return true
			}
		}
	}
	return false
}

func normalizeHeader(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")))
	}
	return out
}
