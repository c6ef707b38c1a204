package phrase

import "testing"

func TestFormatTicketNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"C007", "C 0 0 7"},
		{"E012", "E 0 1 2"},
		{"123", "1 2 3"},
		{"7", "7"},
		{"AB-12", "AB 1 2"},
		{"12A", "1 2 A"},
		{"  c-0 07 ", "c 0 0 7"},
		{"RX", "RX"},
		{"--", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := FormatTicketNumber(tt.raw); got != tt.want {
				t.Fatalf("FormatTicketNumber(%q)=%q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestComposeAnnouncementText(t *testing.T) {
	tests := []struct {
		name                   string
		number, dest, from, og string
		want                   string
	}{
		{
			name:   "plain call",
			number: "C007", dest: "Room 3",
			want: "Turno C 0 0 7, pasar a Room 3",
		},
		{
			name:   "redirect with room name",
			number: "B004", dest: "Room 2", from: "RX", og: "Sala de Rayos X",
			want: "Turno B 0 0 4, referido de Sala de Rayos X, pasar a Room 2",
		},
		{
			name:   "redirect without room name uses service code",
			number: "B004", dest: "Room 2", from: "RX",
			want: "Turno B 0 0 4, referido de RX, pasar a Room 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComposeAnnouncementText(tt.number, tt.dest, tt.from, tt.og)
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			if again := ComposeAnnouncementText(tt.number, tt.dest, tt.from, tt.og); again != got {
				t.Fatalf("not deterministic: %q vs %q", got, again)
			}
		})
	}
}

func TestFallbackDestination(t *testing.T) {
	if got := FallbackDestination(" 5 "); got != "Sala 5" {
		t.Fatalf("got %q", got)
	}
}
