package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jrsteele09/fixit-auth/deeplink"
	"github.com/jrsteele09/fixit-auth/launcher"
)

// terminalSurface stands in for the OS auth session on a desktop. The user
// opens the URL, then either the redirect reaches the callback server, or
// they paste the final URL, press enter when done without one, or type
// "cancel".
type terminalSurface struct {
	hub   *deeplink.Hub
	lines <-chan string
	out   io.Writer
}

var _ launcher.AuthSurface = (*terminalSurface)(nil)

func newTerminalSurface(hub *deeplink.Hub, in io.Reader, out io.Writer) *terminalSurface {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()
	return &terminalSurface{hub: hub, lines: lines, out: out}
}

func (t *terminalSurface) OpenAuthSession(ctx context.Context, authURL, redirectURL string) (launcher.Outcome, error) {
	links := t.hub.Subscribe(1)
	defer links.Close()

	fmt.Fprintf(t.out, "Open this URL to sign in:\n\n  %s\n\n", authURL)
	fmt.Fprintf(t.out, "Paste the %s... URL you land on, press enter if the browser did not come back, or type cancel.\n", redirectURL)

	select {
	case raw, ok := <-links.C:
		if !ok {
			return launcher.Dismiss(), nil
		}
		return launcher.Success(raw), nil
	case line, ok := <-t.lines:
		switch {
		case !ok, line == "":
			return launcher.Dismiss(), nil
		case strings.EqualFold(line, "cancel"):
			return launcher.Cancel(), nil
		}
		return launcher.Success(line), nil
	case <-ctx.Done():
		return launcher.Outcome{}, ctx.Err()
	}
}

type printNavigator struct {
	out io.Writer
}

func newPrintNavigator(out io.Writer) launcher.Navigator {
	return printNavigator{out: out}
}

// Navigate prints the URL; a desktop terminal cannot replace the page it runs in.
func (p printNavigator) Navigate(_ context.Context, url string) error {
	fmt.Fprintf(p.out, "Continue sign-in in your browser:\n\n  %s\n\n", url)
	return nil
}
