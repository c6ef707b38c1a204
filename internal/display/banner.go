package display

import (
	_ "embed"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
)

//go:embed banner.txt
var bannerRaw string

// RenderBanner returns the banner art centred for width columns, followed
// by an optional subtitle line. A width of 0 uses the terminal width.
func RenderBanner(width int, subtitle string) string {
	if width <= 0 {
		width = TermWidth()
	}

	lines := strings.Split(strings.TrimRight(bannerRaw, "\n"), "\n")
	if subtitle != "" {
		lines = append(lines, "", subtitle)
	}

	artW := 0
	for _, l := range lines {
		artW = max(artW, lipgloss.Width(l))
	}

	var b strings.Builder
	for _, l := range lines {
		if pad := (width - lipgloss.Width(l)) / 2; width > artW && pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		}
		b.WriteString(BannerStyle.Render(l))
		b.WriteByte('\n')
	}
	return b.String()
}

// TermWidth returns the current terminal column count, or 80 as fallback.
func TermWidth() int {
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return 80
}
