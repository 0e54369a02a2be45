package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/park285/phonechess-client/internal/rules"
	"github.com/park285/phonechess-client/internal/session"
	"github.com/park285/phonechess-client/internal/timecontrol"
)

var errUnknownCommand = errors.New("unknown command")

// Local commands handled by the terminal itself.
const (
	cmdHelp   = "help"
	cmdStatus = "status"
	cmdQuit   = "quit"
)

type command struct {
	local string
	event session.Event
}

func parseCommand(line string) (command, error) {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return command{}, errUnknownCommand
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		return command{local: cmdHelp}, nil
	case "status", "s":
		return command{local: cmdStatus}, nil
	case "quit", "exit", "q":
		return command{local: cmdQuit}, nil
	case "connect":
		return command{event: session.ConnectRequested{}}, nil
	case "join":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: join <%s>", strings.Join(timecontrol.Keys(), "|"))
		}
		return command{event: session.JoinQueueRequested{Bucket: args[0]}}, nil
	case "leave":
		return command{event: session.LeaveQueueRequested{}}, nil
	case "tap", "select":
		if len(args) != 1 || !rules.ValidSquare(args[0]) {
			return command{}, errors.New("usage: tap <square>")
		}
		return command{event: session.SquareSelected{Square: strings.ToLower(args[0])}}, nil
	case "move", "mv":
		from, to, ok := moveArgs(args)
		if !ok {
			return command{}, errors.New("usage: move <from> <to> | move e2e4")
		}
		return command{event: session.MoveAttempted{From: from, To: to}}, nil
	case "resign":
		return command{event: session.ResignPressed{}}, nil
	case "close", "back":
		return command{event: session.GameLeft{}}, nil
	}

	// Bare coordinate move, e.g. "e2e4".
	if from, to, ok := moveArgs(parts); ok {
		return command{event: session.MoveAttempted{From: from, To: to}}, nil
	}
	return command{}, fmt.Errorf("%w: %q", errUnknownCommand, cmd)
}

func moveArgs(args []string) (string, string, bool) {
	switch len(args) {
	case 1:
		s := strings.ToLower(args[0])
		if len(s) == 4 && rules.ValidSquare(s[:2]) && rules.ValidSquare(s[2:]) {
			return s[:2], s[2:], true
		}
	case 2:
		if rules.ValidSquare(args[0]) && rules.ValidSquare(args[1]) {
			return strings.ToLower(args[0]), strings.ToLower(args[1]), true
		}
	}
	return "", "", false
}

func helpText() string {
	return strings.Join([]string{
		"commands:",
		"  join <" + strings.Join(timecontrol.Keys(), "|") + ">   enter a matchmaking queue",
		"  leave                  leave the queue",
		"  tap <sq>               select a piece or destination",
		"  move <from> <to>       move directly (also: e2e4)",
		"  resign                 press twice within 3s to resign",
		"  close                  leave a finished game",
		"  status | help | quit",
	}, "\n")
}
