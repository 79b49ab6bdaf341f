package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Supplier - закрытый перечень поставщиков. Значение - стабильный ключ для БД и API.
type Supplier string

const (
	SupplierDinamik Supplier = "dinamik"
	SupplierBasbug  Supplier = "basbug"
	SupplierDogus   Supplier = "dogus"
)

var ErrUnknownSupplier = errors.New("unknown supplier")

var supplierDisplayNames = map[Supplier]string{
	SupplierDinamik: "Dinamik",
	SupplierBasbug:  "Başbuğ",
	SupplierDogus:   "Doğuş",
}

// AllSuppliers возвращает поставщиков в каноническом порядке.
func AllSuppliers() []Supplier {
	return []Supplier{SupplierDinamik, SupplierBasbug, SupplierDogus}
}

func (s Supplier) Valid() bool {
	_, ok := supplierDisplayNames[s]
	return ok
}

func (s Supplier) DisplayName() string {
	if name, ok := supplierDisplayNames[s]; ok {
		return name
	}
	return string(s)
}

func (s Supplier) String() string {
	return string(s)
}

func (s Supplier) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

func (s *Supplier) UnmarshalText(text []byte) error {
	parsed, err := ParseSupplier(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSupplier принимает ключ, отображаемое имя или его ASCII-вариант ("Başbuğ", "BASBUG", "basbug").
func ParseSupplier(raw string) (Supplier, error) {
	key := foldLabel(raw)
	for s := range supplierDisplayNames {
		if key == string(s) || key == foldLabel(s.DisplayName()) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSupplier, raw)
}

var dotlessI = strings.NewReplacer("ı", "i", "İ", "I")

// foldLabel убирает диакритику и регистр: "Doğuş" -> "dogus".
func foldLabel(s string) string {
	s = dotlessI.Replace(strings.TrimSpace(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return cases.Fold().String(folded)
}

// SortSuppliers упорядочивает поставщиков по каноническому порядку, неизвестные - в конец.
func SortSuppliers(list []Supplier) {
	rank := make(map[Supplier]int, len(supplierDisplayNames))
	for i, s := range AllSuppliers() {
		rank[s] = i
	}
	sort.SliceStable(list, func(i, j int) bool {
		ri, ok := rank[list[i]]
		if !ok {
			ri = len(rank)
		}
		rj, ok := rank[list[j]]
		if !ok {
			rj = len(rank)
		}
		return ri < rj
	})
}

// DisplayNames - имена для тегов витрины.
func DisplayNames(list []Supplier) []string {
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.DisplayName()
	}
	return names
}
