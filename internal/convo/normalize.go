package convo

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// command is the canonical top-level command set.
type command int

const (
	cmdNone command = iota
	cmdRegister
	cmdReport
	cmdHelp
)

// commandAliases maps normalized input to a canonical command. Spanish is
// the primary vocabulary; common English synonyms are accepted too.
var commandAliases = map[string]command{
	"registro":  cmdRegister,
	"registrar": cmdRegister,
	"register":  cmdRegister,
	"sign up":   cmdRegister,

	"reporte": cmdReport,
	"report":  cmdReport,
	"clima":   cmdReport,
	"weather": cmdReport,
	"precio":  cmdReport,
	"price":   cmdReport,

	"ayuda":  cmdHelp,
	"help":   cmdHelp,
	"info":   cmdHelp,
	"inicio": cmdHelp,
	"start":  cmdHelp,
}

// normalize trims, strips diacritics and case-folds an inbound message so
// "REGISTRO", "Registro" and "regístro" all compare equal.
func normalize(raw string) string {
	return strings.ToLower(stripDiacritics(strings.TrimSpace(raw)))
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// canonicalCommand resolves a normalized message to a top-level command.
func canonicalCommand(msg string) (command, bool) {
	cmd, ok := commandAliases[msg]
	if !ok {
		return cmdNone, false
	}
	return cmd, true
}
