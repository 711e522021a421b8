package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountInWords spells out a money amount in Spanish for printed documents.
// Example: 1500.50 -> "MIL QUINIENTOS CON 50/100"
func AmountInWords(amount decimal.Decimal) string {
	amount = amount.Round(2)
	integerPart := amount.Truncate(0)
	cents := amount.Sub(integerPart).Abs().Shift(2).IntPart()

	if !integerPart.LessThan(decimal.New(1, 12)) {
		return "NÚMERO MUY GRANDE"
	}

	return fmt.Sprintf("%s CON %02d/100", numberToWords(integerPart.IntPart()), cents)
}

func numberToWords(n int64) string {
	switch {
	case n == 0:
		return "CERO"
	case n < 0:
		return "MENOS " + numberToWords(-n)
	case n < 10:
		return units[n]
	case n < 30:
		return specials[n]
	case n < 100:
		if n%10 == 0 {
			return tens[n/10]
		}
		return tens[n/10] + " Y " + units[n%10]
	case n < 1000:
		if n == 100 {
			return "CIEN"
		}
		rest := n % 100
		if rest == 0 {
			return hundreds[n/100]
		}
		return hundreds[n/100] + " " + numberToWords(rest)
	case n < 1_000_000:
		return scaled(n, 1000, "MIL", "MIL")
	default:
		return scaled(n, 1_000_000, "UN MILLÓN", "MILLONES")
	}
}

// scaled spells n as <count> <unit> <rest>, using one when count is 1
func scaled(n, unit int64, one, many string) string {
	count, rest := n/unit, n%unit

	var text string
	if count == 1 {
		text = one
	} else {
		text = apocope(numberToWords(count)) + " " + many
	}
	if rest == 0 {
		return text
	}
	return text + " " + numberToWords(rest)
}

// apocope shortens a trailing UNO before MIL or MILLONES (VEINTIUNO MIL -> VEINTIÚN MIL)
func apocope(words string) string {
	switch {
	case strings.HasSuffix(words, "VEINTIUNO"):
		return strings.TrimSuffix(words, "VEINTIUNO") + "VEINTIÚN"
	case strings.HasSuffix(words, "UNO"):
		return strings.TrimSuffix(words, "UNO") + "UN"
	}
	return words
}

var units = []string{
	"", "UNO", "DOS", "TRES", "CUATRO", "CINCO", "SEIS", "SIETE", "OCHO", "NUEVE",
}

var specials = map[int64]string{
	10: "DIEZ", 11: "ONCE", 12: "DOCE", 13: "TRECE", 14: "CATORCE", 15: "QUINCE",
	16: "DIECISÉIS", 17: "DIECISIETE", 18: "DIECIOCHO", 19: "DIECINUEVE",
	20: "VEINTE", 21: "VEINTIUNO", 22: "VEINTIDÓS", 23: "VEINTITRÉS", 24: "VEINTICUATRO",
	25: "VEINTICINCO", 26: "VEINTISÉIS", 27: "VEINTISIETE", 28: "VEINTIOCHO", 29: "VEINTINUEVE",
}

var tens = []string{
	"", "", "VEINTE", "TREINTA", "CUARENTA", "CINCUENTA", "SESENTA", "SETENTA", "OCHENTA", "NOVENTA",
}

var hundreds = []string{
	"", "CIENTO", "DOSCIENTOS", "TRESCIENTOS", "CUATROCIENTOS", "QUINIENTOS", "SEISCIENTOS", "SETECIENTOS", "OCHOCIENTOS", "NOVECIENTOS",
}
