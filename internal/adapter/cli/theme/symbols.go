package theme

import (
	"os"
	"strings"
)

// SymbolSet holds the status glyphs, with an ASCII fallback set.
type SymbolSet struct {
	Success string
	Error   string
	Warning string
	ArrowR  string
	Bullet  string
}

var unicodeSymbols = SymbolSet{
	Success: "✓",
	Error:   "✗",
	Warning: "⚠",
	ArrowR:  "→",
	Bullet:  "•",
}

var asciiSymbols = SymbolSet{
	Success: "[OK]",
	Error:   "[ERR]",
	Warning: "[!]",
	ArrowR:  "->",
	Bullet:  "*",
}

var (
	SymbolSuccess = unicodeSymbols.Success
	SymbolError   = unicodeSymbols.Error
	SymbolWarning = unicodeSymbols.Warning
	SymbolArrowR  = unicodeSymbols.ArrowR
	SymbolBullet  = unicodeSymbols.Bullet
)

// DetectUnicodeSupport reports whether the terminal likely renders Unicode.
// LEXROUTE_ASCII_SYMBOLS=1 forces ASCII.
func DetectUnicodeSupport() bool {
	if v := os.Getenv("LEXROUTE_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if strings.Contains(val, "utf-8") || strings.Contains(val, "utf8") {
			return true
		}
		if val == "c" || val == "posix" {
			return false
		}
	}
	return true
}

// InitSymbols sets the Symbol* variables for the current terminal.
func InitSymbols() {
	set := unicodeSymbols
	if !DetectUnicodeSupport() {
		set = asciiSymbols
	}
	SymbolSuccess = set.Success
	SymbolError = set.Error
	SymbolWarning = set.Warning
	SymbolArrowR = set.ArrowR
	SymbolBullet = set.Bullet
}

func init() {
	InitSymbols()
}
