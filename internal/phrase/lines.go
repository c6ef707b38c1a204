// Package phrase centralises every spoken and displayed announcement
// string. All functions are pure; the speech engine handles inflection.
package phrase

import (
	"strings"
	"unicode"
)

const (
	wordTicket     = "Turno"
	wordReferred   = "referido de"
	wordProceedTo  = "pasar a"
	wordRoomPrefix = "Sala"
)

// FormatTicketNumber makes a ticket code pronounceable. Non-alphanumeric
// characters are dropped, letter runs stay together, and every digit is
// spoken on its own so "C007" reads "C 0 0 7" instead of "C seven".
//
//	"C007"  -> "C 0 0 7"
//	"123"   -> "1 2 3"
//	"AB-12" -> "AB 1 2"
//	""      -> ""
func FormatTicketNumber(raw string) string {
	var b strings.Builder
	var prev rune
	for _, r := range raw {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		if b.Len() > 0 && (unicode.IsDigit(r) || unicode.IsDigit(prev)) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// ComposeAnnouncementText builds the sentence spoken and shown for a call.
// Redirected tickets mention where they were referred from: the original
// room name if known, otherwise the source service code.
func ComposeAnnouncementText(ticketNumber, destination, redirectedFrom, originalDestination string) string {
	var b strings.Builder
	b.WriteString(wordTicket)
	b.WriteByte(' ')
	b.WriteString(FormatTicketNumber(ticketNumber))

	from := strings.TrimSpace(originalDestination)
	if from == "" {
		from = strings.TrimSpace(redirectedFrom)
	}
	if from != "" {
		b.WriteString(", ")
		b.WriteString(wordReferred)
		b.WriteByte(' ')
		b.WriteString(from)
	}

	b.WriteString(", ")
	b.WriteString(wordProceedTo)
	b.WriteByte(' ')
	b.WriteString(strings.TrimSpace(destination))
	return b.String()
}

// FallbackDestination names a counter when the room lookup fails.
func FallbackDestination(counter string) string {
	return wordRoomPrefix + " " + strings.TrimSpace(counter)
}

// Toast lines shown when audio degrades. The visual banner is always shown.

func ToastSpeechUnavailable() string {
	return "Audio no disponible: los turnos se mostrarán sin voz."
}

func ToastSpeechFailed(ticketNumber string) string {
	return "No se pudo anunciar por voz el turno " + ticketNumber + "."
}

func ToastMissingDestination(ticketNumber string) string {
	return "Turno " + ticketNumber + " sin destino: anuncio descartado."
}
