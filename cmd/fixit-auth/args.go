package main

import (
	"flag"
	"fmt"
	"io"
)

type options struct {
	initialURL string
	command    string
	args       []string
}

// parseArgs reads the global flags and the subcommand. -link stands in for
// the URL a mobile OS hands the app on a cold start from a callback link.
func parseArgs(args []string) (options, error) {
	fs := flag.NewFlagSet("fixit-auth", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	link := fs.String("link", "", "redirect URL the app was launched with")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() == 0 {
		return options{}, fmt.Errorf("missing command")
	}

	opts := options{initialURL: *link, command: fs.Arg(0), args: fs.Args()[1:]}
	switch opts.command {
	case cmdSignIn, cmdSignOut, cmdStatus:
		return opts, nil
	}
	return options{}, fmt.Errorf("unknown command %q", opts.command)
}
