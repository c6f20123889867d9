package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"sia/internal/ipc"
	"sia/internal/sia"
)

var (
	okStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// replyMargin covers the gap between our dial and the daemon's deadline.
const replyMargin = 5 * time.Second

func main() {
	var (
		socket  string
		timeout time.Duration
	)

	send := func(cmd *cobra.Command, req ipc.Request) (ipc.Reply, error) {
		d := timeout
		if d <= 0 {
			d = ipc.Timeout(req.Cmd) + replyMargin
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), d)
		defer cancel()

		reply, err := ipc.Send(ctx, socket, req)
		if err != nil {
			return reply, err
		}
		if !reply.OK {
			return reply, errors.New(reply.Message)
		}
		return reply, nil
	}

	simple := func(use, short, cmdName string, args cobra.PositionalArgs, arg func([]string) (string, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := arg(args)
				if err != nil {
					return err
				}
				reply, err := send(cmd, ipc.Request{Cmd: cmdName, Arg: a})
				if err != nil {
					return err
				}
				if reply.Message != "" {
					fmt.Println(okStyle.Render(reply.Message))
				}
				return nil
			},
		}
	}

	noArg := func([]string) (string, error) { return "", nil }
	joined := func(args []string) (string, error) { return strings.Join(args, " "), nil }
	absPath := func(args []string) (string, error) { return filepath.Abs(args[0]) }

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show listening state, device state and task counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reply, err := send(cmd, ipc.Request{Cmd: ipc.CmdStatus})
			if err != nil {
				return err
			}
			var st sia.Status
			if err := json.Unmarshal(reply.Status, &st); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}
			printStatus(st)
			return nil
		},
	}

	root := &cobra.Command{
		Use:           "sia-ctl",
		Short:         "Control a running sia-daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&socket, "socket", "s", ipc.DefaultSocket, "Control socket path")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Request timeout, 0 waits as long as the daemon does")

	root.AddCommand(
		simple("toggle", "Start or stop listening", ipc.CmdToggle, cobra.NoArgs, noArg),
		simple("say <text...>", "Dispatch a typed transcript", ipc.CmdSay, cobra.MinimumNArgs(1), joined),
		simple("read-file <path>", "Load a text file into the file reader", ipc.CmdReadFile, cobra.ExactArgs(1), absPath),
		simple("listen-file <path>", "Transcribe an audio file and dispatch it", ipc.CmdListenFile, cobra.ExactArgs(1), absPath),
		statusCmd,
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func printStatus(st sia.Status) {
	state := "idle"
	if st.Listening {
		state = "listening"
	}
	line := st.Line
	if st.LineError {
		line = errStyle.Render(line)
	}

	fmt.Printf("Capture:    %s %s\n", okStyle.Render(state), dimStyle.Render(line))
	fmt.Printf("Lights:     %s\n", onOff(st.Device.Lights))
	fmt.Printf("Wi-Fi:      %s\n", onOff(st.Device.WiFi))
	fmt.Printf("Brightness: %d%%\n", st.Device.Brightness)
	fmt.Printf("Volume:     %d%%\n", st.Device.Volume)
	fmt.Printf("Thermostat: %d°C\n", st.Device.Thermostat)
	fmt.Printf("Reminders:  %d\n", st.Reminders)
	fmt.Printf("To-dos:     %d\n", st.Todos)
	fmt.Printf("Alarms:     %d armed\n", st.AlarmsArmed)
	if len(st.Widgets) > 0 {
		fmt.Printf("Widgets:    %s\n", strings.Join(st.Widgets, ", "))
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
