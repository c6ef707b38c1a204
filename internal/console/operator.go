package console

import (
	"context"
	"errors"
	"fmt"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
)

// Announcer is the announcement entry point.
type Announcer interface {
	AnnounceTicket(ctx context.Context, call domain.Call) bool
}

// Resolver turns a called ticket into a call with destination names.
type Resolver interface {
	Resolve(ctx context.Context, t domain.Ticket) domain.Call
}

// Operator executes operator commands against the ticket store and
// announces the tickets it calls.
type Operator struct {
	log       *logger.Logger
	parser    *Parser
	actions   domain.TicketActions
	resolver  Resolver
	announcer Announcer
	out       *Printer
}

// NewOperator wires an operator. announcer may be nil, in which case
// calls reach displays only through the change feed.
func NewOperator(actions domain.TicketActions, resolver Resolver, announcer Announcer, out *Printer, log *logger.Logger) *Operator {
	return &Operator{
		log:       log,
		parser:    NewParser(log),
		actions:   actions,
		resolver:  resolver,
		announcer: announcer,
		out:       out,
	}
}

// Run parses and executes one input line, printing the outcome.
func (o *Operator) Run(ctx context.Context, line string) {
	cmd := o.parser.Parse(line)
	switch cmd.Kind {
	case KindUnknown:
		o.out.Warn("comando no reconocido: %q (help para ayuda)", line)
		return
	case KindHelp:
		o.out.Info("%s", Help())
		return
	}

	msg, err := o.Execute(ctx, cmd)
	if err != nil {
		o.out.Toast(describe(cmd, err))
		return
	}
	o.out.Info("%s", msg)
}

// Execute runs a parsed command and returns a status line.
func (o *Operator) Execute(ctx context.Context, cmd Command) (string, error) {
	switch cmd.Kind {
	case KindIssue:
		t, err := o.actions.Issue(ctx, cmd.Arg, cmd.VIP)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("turno %s emitido", t.TicketNumber), nil

	case KindCall:
		t, err := o.actions.Call(ctx, cmd.Ticket, cmd.Arg)
		if err != nil {
			return "", err
		}
		return o.announce(ctx, t), nil

	case KindRecall:
		t, err := o.actions.Recall(ctx, cmd.Ticket)
		if err != nil {
			return "", err
		}
		return o.announce(ctx, t), nil

	case KindRedirect:
		t, err := o.actions.Redirect(ctx, cmd.Ticket, cmd.Arg)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s referido a %s como %s", cmd.Ticket, cmd.Arg, t.TicketNumber), nil

	case KindComplete:
		if _, err := o.actions.Complete(ctx, cmd.Ticket); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s terminado", cmd.Ticket), nil
	}
	return "", fmt.Errorf("console: unsupported command %s", cmd.Kind)
}

func (o *Operator) announce(ctx context.Context, t *domain.Ticket) string {
	call := o.resolver.Resolve(ctx, *t)
	if o.announcer != nil && !o.announcer.AnnounceTicket(ctx, call) {
		o.log.Warn("console: announcement of %s not accepted", t.TicketNumber)
	}
	return fmt.Sprintf("%s llamado a %s", t.TicketNumber, call.DestinationName)
}

func describe(cmd Command, err error) string {
	target := cmd.Ticket
	if target == "" {
		target = cmd.Arg
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Sprintf("%s: no encontrado", target)
	case errors.Is(err, domain.ErrInvalidState):
		return fmt.Sprintf("%s: no se puede %s en su estado actual", target, verb(cmd.Kind))
	default:
		return fmt.Sprintf("%s: %v", target, err)
	}
}

func verb(k Kind) string {
	switch k {
	case KindCall:
		return "llamar"
	case KindRecall:
		return "volver a llamar"
	case KindRedirect:
		return "referir"
	case KindComplete:
		return "terminar"
	default:
		return k.String()
	}
}
