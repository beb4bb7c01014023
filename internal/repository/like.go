package repository

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes q match literally inside an ILIKE pattern.
func escapeLike(q string) string {
	return likeEscaper.Replace(q)
}
