package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/Wyydra/agentcall/internal/core/port"
	"github.com/Wyydra/agentcall/internal/core/service"
)

var errUsage = errors.New("usage")

const help = `commands:
  edit <name|email> <value>   update the shared form
  submit                      submit the form for review (client)
  accept | decline            answer a submitted form (agent)
  review                      complete the review and store a summary (agent)
  reset                       clear the form on both sides
  start | end                 start or hang up the call
  share                       toggle screen sharing
  mute|unmute <audio|video>   toggle a local track
  state                       print the call state
  quit`

// console drives a coordinator from line-oriented input.
type console struct {
	coord *service.Coordinator
	out   io.Writer
}

func (c *console) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	go func() {
		defer close(lines)
		s := bufio.NewScanner(in)
		for s.Scan() {
			select {
			case lines <- s.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(c.out, `type "help" for commands`)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := c.exec(ctx, line)
			if err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func (c *console) exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	switch cmd, args := fields[0], fields[1:]; cmd {
	case "help":
		fmt.Fprintln(c.out, help)
	case "edit":
		if len(args) < 2 {
			return false, fmt.Errorf("%w: edit <name|email> <value>", errUsage)
		}
		return false, c.coord.EditForm(ctx, args[0], strings.Join(args[1:], " "))
	case "submit":
		return false, c.coord.SubmitForm(ctx)
	case "accept":
		return false, c.coord.AcceptCall(ctx)
	case "decline":
		return false, c.coord.DeclineCall(ctx)
	case "review":
		return false, c.coord.CompleteReview(ctx)
	case "reset":
		return false, c.coord.ResetForm(ctx)
	case "start":
		return false, c.coord.StartCall(ctx)
	case "end":
		return false, c.coord.EndCall(ctx)
	case "share":
		return false, c.coord.ToggleScreenShare(ctx)
	case "mute", "unmute":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: %s <audio|video>", errUsage, cmd)
		}
		kind := domain.TrackKind(args[0])
		if kind != domain.TrackAudio && kind != domain.TrackVideo {
			return false, fmt.Errorf("%w: %s <audio|video>", errUsage, cmd)
		}
		return false, c.coord.SetTrackEnabled(kind, cmd == "unmute")
	case "state":
		c.printState()
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", cmd)
	}
	return false, nil
}

func (c *console) printState() {
	form := c.coord.Form()
	fmt.Fprintf(c.out, "state=%s video=%s remote_screen=%t\n", c.coord.State(), c.coord.VideoSource(), c.coord.RemoteScreenSharing())
	fmt.Fprintf(c.out, "form name=%q email=%q frozen=%t pending=%t\n", form.Name, form.Email, c.coord.FormFrozen(), c.coord.PendingSubmission())
}

// printNotices renders local-user notifications.
func printNotices(out io.Writer) port.Notifier {
	return port.NotifierFunc(func(n domain.Notice) {
		switch n.Kind {
		case domain.NoticeStateChanged:
			fmt.Fprintf(out, "* call %s\n", n.State)
		case domain.NoticeFormChanged:
			fmt.Fprintf(out, "* form name=%q email=%q\n", n.Form.Name, n.Form.Email)
		case domain.NoticeIncomingCall:
			fmt.Fprintf(out, "* %s <%s> wants a call: accept or decline\n", n.Form.Name, n.Form.Email)
		case domain.NoticeCallDeclined:
			fmt.Fprintln(out, "* call declined")
		case domain.NoticeReviewCompleted:
			fmt.Fprintln(out, "* review completed")
		case domain.NoticeRemoteScreen:
			if n.Screen {
				fmt.Fprintln(out, "* remote is sharing their screen")
			} else {
				fmt.Fprintln(out, "* remote stopped sharing")
			}
		case domain.NoticeRemoteSummary:
			fmt.Fprintf(out, "* summary from %s: name=%q email=%q\n", n.Summary.RoleLabel, n.Summary.FormData.Name, n.Summary.FormData.Email)
		case domain.NoticeError:
			fmt.Fprintf(out, "* error: %v\n", n.Err)
		}
	})
}
