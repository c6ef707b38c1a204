// Package console turns operator input lines into ticket actions and
// reports the outcome.
package console

import (
	"regexp"
	"strings"

	"github.com/hammamikhairi/turnocall/internal/logger"
)

// Kind identifies an operator command.
type Kind int

const (
	KindUnknown Kind = iota
	KindIssue
	KindCall
	KindRecall
	KindRedirect
	KindComplete
	KindHelp
)

func (k Kind) String() string {
	switch k {
	case KindIssue:
		return "issue"
	case KindCall:
		return "call"
	case KindRecall:
		return "recall"
	case KindRedirect:
		return "redirect"
	case KindComplete:
		return "complete"
	case KindHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Command is one parsed operator line. Ticket is the ticket number; Arg
// is the counter for call, the service code for redirect and issue.
type Command struct {
	Kind   Kind
	Ticket string
	Arg    string
	VIP    bool
}

// Parser matches operator input against keyword patterns. English and
// Spanish verbs are accepted.
type Parser struct {
	log   *logger.Logger
	rules []rule
}

type rule struct {
	regex *regexp.Regexp
	build func(m []string) Command
}

// NewParser creates a command parser.
func NewParser(log *logger.Logger) *Parser {
	return &Parser{
		log: log,
		rules: []rule{
			{regexp.MustCompile(`(?i)^(?:call|llamar|c)\s+(\S+)\s+(?:to\s+|a\s+)?(\S+)$`), func(m []string) Command {
				return Command{Kind: KindCall, Ticket: m[1], Arg: m[2]}
			}},
			{regexp.MustCompile(`(?i)^(?:recall|rellamar|again|r)\s+(\S+)$`), func(m []string) Command {
				return Command{Kind: KindRecall, Ticket: m[1]}
			}},
			{regexp.MustCompile(`(?i)^(?:redirect|referir|send)\s+(\S+)\s+(?:to\s+|a\s+)?(\S+)$`), func(m []string) Command {
				return Command{Kind: KindRedirect, Ticket: m[1], Arg: m[2]}
			}},
			{regexp.MustCompile(`(?i)^(?:done|complete|finish|fin|terminar)\s+(\S+)$`), func(m []string) Command {
				return Command{Kind: KindComplete, Ticket: m[1]}
			}},
			{regexp.MustCompile(`(?i)^(?:issue|new|emitir)\s+(\S+)(\s+vip)?$`), func(m []string) Command {
				return Command{Kind: KindIssue, Arg: m[1], VIP: m[2] != ""}
			}},
			{regexp.MustCompile(`(?i)^(?:help|ayuda|h|\?)$`), func([]string) Command {
				return Command{Kind: KindHelp}
			}},
		},
	}
}

// Parse converts one input line into a command. Ticket numbers and
// service codes are upper-cased.
func (p *Parser) Parse(input string) Command {
	trimmed := strings.Join(strings.Fields(input), " ")
	if trimmed == "" {
		return Command{}
	}

	for _, r := range p.rules {
		m := r.regex.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		cmd := r.build(m)
		cmd.Ticket = strings.ToUpper(cmd.Ticket)
		if cmd.Kind != KindCall {
			cmd.Arg = strings.ToUpper(cmd.Arg)
		}
		p.log.Debug("console: %q parsed as %s", trimmed, cmd.Kind)
		return cmd
	}

	p.log.Debug("console: no match for %q", trimmed)
	return Command{}
}

// Help lists the accepted commands.
func Help() string {
	return strings.Join([]string{
		"issue <service> [vip]      emitir un turno",
		"call <ticket> <counter>    llamar a un turno",
		"recall <ticket>            volver a llamar",
		"redirect <ticket> <service> referir a otro servicio",
		"done <ticket>              terminar la atención",
	}, "\n")
}
