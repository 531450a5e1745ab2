package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hmaeda/crewvault/internal/confignode"
	"github.com/hmaeda/crewvault/internal/daemon"
	"github.com/hmaeda/crewvault/internal/model"
	"github.com/hmaeda/crewvault/internal/persist"
	"github.com/hmaeda/crewvault/internal/setup"
	"github.com/hmaeda/crewvault/internal/status"
	"github.com/hmaeda/crewvault/internal/uds"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "inspect":
		runInspect(os.Args[2:])
	case "repair":
		runRepair(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "version":
		fmt.Printf("crewvault %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runInit(args []string) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if err := setup.Run(dir); err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}
	absDir, _ := filepath.Abs(dir)
	fmt.Printf("Initialized %s/ in %s\n", model.DirName, absDir)
}

func runInspect(args []string) {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: crewvault inspect [--json]\n", a)
			os.Exit(1)
		}
	}

	vaultDir := requireVaultDir()
	if err := status.Run(vaultDir, jsonOutput, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
}

// runRepair walks the recovery ladder by hand: quarantine the current
// roster if it does not parse, restore the backup or write a skeleton.
func runRepair(_ []string) {
	vaultDir := requireVaultDir()
	cfg, err := setup.LoadConfig(vaultDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "repair: %v\n", err)
		os.Exit(1)
	}

	rosterPath := filepath.Join(vaultDir, cfg.Vault.RosterFile)
	data, err := os.ReadFile(rosterPath)
	switch {
	case os.IsNotExist(err):
		if err := persist.WriteSkeleton(rosterPath); err != nil {
			fmt.Fprintf(os.Stderr, "repair: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Roster was missing, wrote empty roster at %s\n", rosterPath)
	case err != nil:
		fmt.Fprintf(os.Stderr, "repair: %v\n", err)
		os.Exit(1)
	default:
		if _, perr := confignode.Parse(data); perr == nil {
			fmt.Printf("Roster at %s is healthy\n", rosterPath)
			return
		}
		if err := persist.RecoverCorruptedFile(vaultDir, rosterPath); err != nil {
			fmt.Fprintf(os.Stderr, "repair: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Recovered roster at %s (original quarantined)\n", rosterPath)
	}
}

func runWatch(args []string) {
	vaultDir := requireVaultDir()

	if len(args) > 0 {
		switch args[0] {
		case "ping", "reload", "stop":
			cmd := args[0]
			if cmd == "stop" {
				cmd = "shutdown"
			}
			sendWatchCommand(vaultDir, cmd)
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown watch subcommand: %s\nusage: crewvault watch [ping|reload|stop]\n", args[0])
			os.Exit(1)
		}
	}

	cfg, err := setup.LoadConfig(vaultDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	d, err := daemon.New(vaultDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create watch: %v\n", err)
		os.Exit(1)
	}
	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		os.Exit(1)
	}
}

func sendWatchCommand(vaultDir, command string) {
	client := uds.NewClient(filepath.Join(vaultDir, uds.DefaultSocketName))
	resp, err := client.SendCommand(command, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watch %s: %v\n", command, err)
		os.Exit(1)
	}
	if !resp.Success {
		fmt.Fprintf(os.Stderr, "watch %s: %s: %s\n", command, resp.Error.Code, resp.Error.Message)
		os.Exit(1)
	}
	fmt.Printf("%s\n", resp.Data)
}

func requireVaultDir() string {
	vaultDir := setup.Find()
	if vaultDir == "" {
		fmt.Fprintf(os.Stderr, "error: %s/ directory not found. Run 'crewvault init <dir>' first.\n", model.DirName)
		os.Exit(1)
	}
	return vaultDir
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `crewvault %s — Crew roster persistence vault

Usage: crewvault <command> [options]

Vault:
  init [dir]        Initialize %s/ directory
  inspect [--json]  Show the crew roster
  repair            Quarantine and recover a corrupt roster

Internal:
  watch             Run the roster watch process
  watch ping        Check the watch process is alive
  watch reload      Force a roster reload from disk
  watch stop        Graceful watch shutdown

Utilities:
  version           Show version
  help              Show this help

`, version, model.DirName)
}
