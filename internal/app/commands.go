package app

import (
	"fmt"
	"strings"

	"github.com/quantmind-br/photofeed/internal/feed"
)

// Command is one parsed line of browse input
type Command struct {
	Action feed.Action
	Quit   bool
	Help   bool
}

// ParseCommand maps an input line to a machine action. Plain text is a
// query edit; lines starting with ':' are commands.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, ":") {
		return Command{Action: feed.QueryChanged{Text: line}}, nil
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "next", "n":
		return Command{Action: feed.LoadNextPage{}}, nil
	case "retry":
		return Command{Action: feed.Retry{}}, nil
	case "refresh", "r":
		return Command{Action: feed.Refresh{}}, nil
	case "clear":
		return Command{Action: feed.ClearSearch{}}, nil
	case "search", "s":
		return Command{Action: feed.SubmitQuery{Text: arg}}, nil
	case "open", "o":
		if arg == "" {
			return Command{}, fmt.Errorf(":open needs a photo id")
		}
		return Command{Action: feed.OpenItem{ID: arg}}, nil
	case "quit", "q", "exit":
		return Command{Quit: true}, nil
	case "help", "h", "?":
		return Command{Help: true}, nil
	default:
		return Command{}, fmt.Errorf("unknown command %q (try :help)", ":"+name)
	}
}

const helpText = `Type to search; an empty line shows recent photos.
  :next            load the next page
  :search <text>   search immediately
  :retry           retry after a failure
  :refresh         reload the current list
  :clear           clear the search and stop polling
  :open <id>       show photo details
  :quit            exit
`
