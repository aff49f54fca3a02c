// Command lcdriverd is the process entry point: it wires flag parsing,
// driver startup, and a line-oriented admin console onto the dispatch
// surface, replacing the teacher's plugins.Serve(factory) call (which
// expects a live Nomad RPC harness this core does not have).
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/integrii/flaggy"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/lcdriver/lcdriverd/internal/connectiongate"
	"github.com/lcdriver/lcdriverd/internal/dispatch"
	"github.com/lcdriver/lcdriverd/internal/driver"
)

func main() {
	configDir := "/var/lib/lcdriverd/domains"
	disableMachined := false
	logLevel := "info"

	flaggy.SetName("lcdriverd")
	flaggy.SetDescription("namespace-isolated container lifecycle driver")
	flaggy.String(&configDir, "c", "config-dir", "directory domain definitions are persisted under")
	flaggy.Bool(&disableMachined, "", "disable-machined", "disable best-effort systemd-machined registration")
	flaggy.String(&logLevel, "l", "log-level", "log level (trace, debug, info, warn, error)")
	flaggy.Parse()

	log := hclog.New(&hclog.LoggerOptions{
		Name:  driver.Tag,
		Level: hclog.LevelFromString(logLevel),
	})

	d, err := driver.Startup(driver.Config{ConfigDir: configDir, DisableMachined: disableMachined}, log)
	if err != nil {
		log.Error("startup declined", "error", err)
		os.Exit(1)
	}

	accepted, err := connectiongate.Open(d, connectiongate.CanonicalURI())
	if err != nil {
		log.Error("connection open failed", "error", err)
		os.Exit(1)
	}
	if !accepted {
		log.Error("connection declined for local console; refusing to start")
		os.Exit(1)
	}
	log.Info("driver ready", "uri", connectiongate.CanonicalURI())

	table := dispatch.NewTable(d)
	runConsole(table, log)

	if stillActive := d.Shutdown(); stillActive > 0 {
		log.Warn("shutting down with running domains still tracked; they are not being killed", "count", stillActive)
	}
}

// runConsole is the "dispatch-table wiring exposed to callers" from outside
// this core's scope, reduced to its simplest runnable form: one command per
// line, read until EOF or "quit".
func runConsole(t *dispatch.Table, log hclog.Logger) {
	fmt.Println("lcdriverd console — commands: define <xml-path> | start <name> | shutdown <name> | destroy <name> | undefine <name> | list | info <name> | dump <name> | quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]
		if cmd == "quit" || cmd == "exit" {
			return
		}
		if err := dispatchLine(t, cmd, args); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func dispatchLine(t *dispatch.Table, cmd string, args []string) error {
	switch cmd {
	case "define":
		if len(args) != 1 {
			return fmt.Errorf("usage: define <xml-path>")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		rec, err := t.DefineXML(data)
		if err != nil {
			return err
		}
		fmt.Println("defined", rec.Definition.Name)
		return nil
	case "list":
		ids := make([]int, 64)
		n := t.ListRunningIDs(ids)
		fmt.Println("running:", ids[:n])
		names := make([]string, 64)
		n = t.ListDefinedNames(names)
		fmt.Println("defined:", names[:n])
		return nil
	case "start", "shutdown", "destroy", "undefine", "info", "dump":
		return actOnNamedDomain(t, cmd, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func actOnNamedDomain(t *dispatch.Table, cmd string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <name>", cmd)
	}
	rec, err := t.LookupByName(args[0])
	if err != nil {
		return err
	}
	switch cmd {
	case "start":
		return t.StartFromHandle(rec)
	case "shutdown":
		return t.Shutdown(rec)
	case "destroy":
		return t.Destroy(rec)
	case "undefine":
		return t.UndefineDomain(rec)
	case "info":
		info := t.GetInfo(rec)
		fmt.Printf("state=%s memory=%d maxMemory=%d vcpu=%d cpuTime=%d\n",
			info.State, info.Memory, info.MaxMemory, info.NrVirtCPU, info.CPUTimeNs)
		return nil
	case "dump":
		s, err := t.DumpXML(rec)
		if err != nil {
			return err
		}
		fmt.Println(s)
		return nil
	}
	return nil
}
