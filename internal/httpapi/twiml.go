package httpapi

import (
	"io"
	"net/http"
	"strings"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>`

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

// FormatTwiML wraps reply in a messaging response holding a single message.
func FormatTwiML(reply string) string {
	return xmlHeader + "<Response><Message>" + xmlEscaper.Replace(reply) + "</Message></Response>"
}

func writeTwiML(w http.ResponseWriter, status int, reply string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, FormatTwiML(reply))
}
