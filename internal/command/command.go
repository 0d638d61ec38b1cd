// Package command maps chat commands onto lifecycle operations and renders
// the textual replies.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/loykin/mcwarden/internal/auth"
	"github.com/loykin/mcwarden/internal/lifecycle"
	"github.com/loykin/mcwarden/internal/metrics"
	"github.com/loykin/mcwarden/internal/process"
	"github.com/loykin/mcwarden/internal/rcon"
)

// Controller is the lifecycle surface the dispatcher drives.
type Controller interface {
	Config() lifecycle.Config
	Start(ctx context.Context) (lifecycle.StartResult, error)
	Stop(ctx context.Context, s lifecycle.Strength) (lifecycle.StopResult, error)
	ToggleLatch(ctx context.Context) bool
	Status(ctx context.Context) lifecycle.Status
	Say(ctx context.Context, text string) (string, error)
	WhitelistAdd(ctx context.Context, name string) (string, error)
	Save(ctx context.Context) (string, error)
}

// Authorizer decides whether a caller may run admin verbs.
type Authorizer interface {
	Check(caller string) auth.Decision
}

// Reply is what the chat channel relays back to the caller.
type Reply struct {
	Verb string `json:"verb"`
	Text string `json:"reply"`
}

const (
	resultOK           = "ok"
	resultError        = "error"
	resultUnauthorized = "unauthorized"
	resultUnknown      = "unknown"
	resultUsage        = "usage"
)

const (
	UnknownText      = "I don't understand that command. Try !help to see what I can do."
	UnauthorizedText = "You're not allowed to use that command."
)

const helpText = "I'm the Minecraft Bot! I have the following commands:" +
	"\n\t**!help, !h** - get this message!" +
	"\n\t**!status** - find out whether or not the minecraft server is running" +
	"\n\t**!start** - start the minecraft server, if it isn't running but I'm online" +
	"\n\t**!latch** - toggle the server latch. If the server is latched, it will stay on even if no one is playing" +
	"\n\t**!say** - say something in the server chat" +
	"\n\t**!whitelist** - add someone to the whitelist" +
	"\n\t**!save** - save the server" +
	"\n\t**!_stop** - stop the server manually, even if someone is playing" +
	"\n\t**!stop** - stop the server manually, if no one is playing"

type handler func(ctx context.Context, d *Dispatcher, args []string) (string, string)

type verb struct {
	name  string
	admin bool
	run   handler
}

var verbs = map[string]verb{}

func register(v verb, aliases ...string) {
	verbs[v.name] = v
	for _, a := range aliases {
		verbs[a] = v
	}
}

func init() {
	register(verb{name: "help", run: runHelp}, "h")
	register(verb{name: "status", run: runStatus})
	register(verb{name: "start", run: runStart})
	register(verb{name: "stop", run: stopWith(lifecycle.Soft)})
	register(verb{name: "force-stop", run: stopWith(lifecycle.Hard)}, "_stop")
	register(verb{name: "latch", admin: true, run: runLatch})
	register(verb{name: "say", admin: true, run: runSay})
	register(verb{name: "whitelist-add", admin: true, run: runWhitelist}, "whitelist")
	register(verb{name: "save", admin: true, run: runSave})
}

type Dispatcher struct {
	ctl    Controller
	admins Authorizer
}

func NewDispatcher(ctl Controller, admins Authorizer) *Dispatcher {
	return &Dispatcher{ctl: ctl, admins: admins}
}

// Dispatch parses one chat line and runs it. Admin verbs are rejected for
// callers outside the allow-list before anything else happens.
func (d *Dispatcher) Dispatch(ctx context.Context, caller, text string) Reply {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		metrics.IncCommand("", resultUnknown)
		return Reply{Text: UnknownText}
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "!"))
	v, ok := verbs[name]
	if !ok {
		metrics.IncCommand("unknown", resultUnknown)
		return Reply{Verb: name, Text: UnknownText}
	}
	if v.admin && (d.admins == nil || d.admins.Check(caller) != auth.Authorized) {
		slog.Warn("Rejected admin command", "caller", caller, "verb", v.name)
		metrics.IncCommand(v.name, resultUnauthorized)
		return Reply{Verb: v.name, Text: UnauthorizedText}
	}
	out, result := v.run(ctx, d, fields[1:])
	metrics.IncCommand(v.name, result)
	slog.Debug("Command handled", "caller", caller, "verb", v.name, "result", result)
	return Reply{Verb: v.name, Text: out}
}

func runHelp(context.Context, *Dispatcher, []string) (string, string) {
	return helpText, resultOK
}

func runStart(ctx context.Context, d *Dispatcher, _ []string) (string, string) {
	r, err := d.ctl.Start(ctx)
	if err != nil {
		slog.Error("Failed to start server", "error", err)
		return "I couldn't start the server: " + err.Error(), resultError
	}
	switch r.Outcome {
	case lifecycle.StartAlreadyOnline:
		return fmt.Sprintf("The server is already online! There are %d players connected.", r.Players), resultOK
	case lifecycle.StartAlreadyRunning:
		return "The server is already running! Give it a moment to come online.", resultOK
	}
	return "Starting server! Give me a sec...", resultOK
}

func stopWith(s lifecycle.Strength) handler {
	return func(ctx context.Context, d *Dispatcher, _ []string) (string, string) {
		r, err := d.ctl.Stop(ctx, s)
		if err != nil {
			slog.Error("Failed to stop server", "strength", s.String(), "error", err)
			return "Something went wrong while stopping the server: " + err.Error(), resultError
		}
		switch r.Decision {
		case lifecycle.StopRefused:
			return fmt.Sprintf("There are currently players (%d) on the server, so I'm not going to listen to you!", r.Players), resultOK
		case lifecycle.StopAwaitingConfirmation:
			cmd := "!stop"
			if s == lifecycle.Hard {
				cmd = "!_stop"
			}
			return fmt.Sprintf("To manually stop the server, please use %s again within %s.", cmd, seconds(d.ctl.Config().ConfirmWindow)), resultOK
		}
		if r.Outcome == process.StopTerminatedForcefully {
			return "Stopping server. Thanks! (It had to be terminated forcefully.)", resultOK
		}
		return "Stopping server. Thanks!", resultOK
	}
}

func runLatch(ctx context.Context, d *Dispatcher, _ []string) (string, string) {
	if d.ctl.ToggleLatch(ctx) {
		return "Server is latched and will stay on permanently.", resultOK
	}
	return fmt.Sprintf("Server is delatched and will switch off after %s of 0 players.", minutes(d.ctl.Config().IdleCountdown)), resultOK
}

func runStatus(ctx context.Context, d *Dispatcher, _ []string) (string, string) {
	st := d.ctl.Status(ctx)
	if !st.Active {
		return "The server is offline.", resultOK
	}
	if !st.Reachable {
		return "The server is currently [[DATA EXPUNGED]]", resultOK
	}
	var b strings.Builder
	fmt.Fprintf(&b, "The server has been online since %s.\n", st.Since)
	fmt.Fprintf(&b, "There are %d players connected.\n", st.Players)
	fmt.Fprintf(&b, "Server latch state is %t.", st.Latched)
	if st.RSSBytes > 0 {
		fmt.Fprintf(&b, "\nMemory in use: %s.", humanize.IBytes(st.RSSBytes))
	}
	return b.String(), resultOK
}

func runSay(ctx context.Context, d *Dispatcher, args []string) (string, string) {
	if len(args) == 0 {
		return "Usage: !say <text>", resultUsage
	}
	return rconReply(d.ctl.Say(ctx, strings.Join(args, " ")))
}

func runWhitelist(ctx context.Context, d *Dispatcher, args []string) (string, string) {
	if len(args) != 1 {
		return "Usage: !whitelist <name>", resultUsage
	}
	return rconReply(d.ctl.WhitelistAdd(ctx, args[0]))
}

func runSave(ctx context.Context, d *Dispatcher, _ []string) (string, string) {
	return rconReply(d.ctl.Save(ctx))
}

func rconReply(resp string, err error) (string, string) {
	var failed *rcon.CommandFailedError
	switch {
	case err == nil:
		if resp = strings.TrimSpace(resp); resp == "" {
			return "Done.", resultOK
		}
		return resp, resultOK
	case errors.Is(err, rcon.ErrNotRunning):
		return "The server isn't running.", resultError
	case errors.Is(err, rcon.ErrRconDisabled):
		return "RCON is not enabled on the server.", resultError
	case errors.As(err, &failed):
		slog.Warn("RCON command failed", "command", failed.Command, "error", failed.Err)
		return "I couldn't reach the server console. Try again in a bit.", resultError
	}
	return "Something went wrong: " + err.Error(), resultError
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int(d/time.Second))
}

func minutes(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
