package quickbooks

import "strings"

var literalEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// Literal quotes a value for use in a QBO query WHERE clause.
func Literal(value string) string {
	return "'" + literalEscaper.Replace(value) + "'"
}
