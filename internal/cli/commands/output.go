package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"offlinecache/internal/controller"
	"offlinecache/internal/daemon"
	"offlinecache/internal/notify"
)

var stateColors = map[controller.State]*color.Color{
	controller.StateInstalling: color.New(color.FgYellow),
	controller.StateWaiting:    color.New(color.FgYellow),
	controller.StateActive:     color.New(color.FgGreen),
	controller.StateRedundant:  color.New(color.Faint),
	controller.StateTerminated: color.New(color.FgRed),
}

func stateString(s controller.State) string {
	if c, ok := stateColors[s]; ok {
		return c.Sprint(s.String())
	}
	return s.String()
}

func printController(w io.Writer, label string, st *daemon.ControllerStatus) {
	if st == nil {
		fmt.Fprintf(w, "%s: none\n", label)
		return
	}
	skip := ""
	if st.SkipWaiting {
		skip = ", skip waiting"
	}
	fmt.Fprintf(w, "%s: %s (%s%s)\n", label, st.Generation, stateString(st.State), skip)
	s := st.Stats
	fmt.Fprintf(w, "  fetches: %d network, %d cache, %d offline page, %d failed\n",
		s.Network, s.CacheHits, s.OfflineFallbacks, s.Unresolved)
	fmt.Fprintf(w, "  cache writes: %d ok, %d failed\n", s.CacheWrites, s.CacheWriteFailures)
	if s.SyncFailures > 0 {
		fmt.Fprintf(w, "  sync failures: %d\n", s.SyncFailures)
	}
}

func printStatus(w io.Writer, resp *daemon.Response) {
	fmt.Fprintf(w, "Daemon: running (PID %d)\n", resp.PID)
	fmt.Fprintf(w, "Front server: http://%s -> %s\n", resp.Listen, resp.Origin)
	network := color.GreenString("online")
	if resp.Offline {
		network = color.RedString("offline")
	}
	fmt.Fprintf(w, "Network: %s\n", network)
	fmt.Fprintf(w, "Storage: %s\n", resp.Storage)
	printController(w, "Active", resp.Active)
	printController(w, "Waiting", resp.Waiting)
	fmt.Fprintf(w, "Clients: %d\n", len(resp.Clients))
	for _, c := range resp.Clients {
		focus := ""
		if c.Focused {
			focus = " *"
		}
		gen := c.Generation
		if gen == "" {
			gen = "uncontrolled"
		}
		fmt.Fprintf(w, "  %s %s [%s]%s\n", shortID(c.ID), c.URL, gen, focus)
	}
}

func printNotification(w io.Writer, n notify.Notification) {
	fmt.Fprintf(w, "%s  %s: %s", n.ID, n.Title, n.Body)
	if n.Tag != "" {
		fmt.Fprintf(w, "  [%s]", n.Tag)
	}
	fmt.Fprintf(w, "  (%s)\n", n.ShownAt.Local().Format(time.Kitchen))
}

func printGenerations(w io.Writer, gens []daemon.GenerationInfo) {
	if len(gens) == 0 {
		fmt.Fprintln(w, "No cache generations")
		return
	}
	for _, g := range gens {
		mark := " "
		if g.Current {
			mark = color.GreenString("*")
		}
		line := fmt.Sprintf("%s %s  %d entries", mark, g.Name, g.Entries)
		if g.Bytes > 0 {
			line += ", " + formatBytes(g.Bytes)
		}
		if !g.CreatedAt.IsZero() {
			line += ", created " + g.CreatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintln(w, line)
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
