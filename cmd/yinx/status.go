package main

import (
	"encoding/json"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/neur0map/yinx/internal/daemon"
	"github.com/neur0map/yinx/internal/types"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and capture status",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := daemon.NewClient(cfg.Daemon.SocketPath)
	report, err := client.Status()
	if err != nil {
		if types.CodeOf(err) == types.DAEMON_NOT_RUNNING {
			running, pid, checkErr := daemon.CheckPIDFile(cfg.Daemon.PIDFile)
			if checkErr == nil && running {
				color.Yellow("daemon process %d is alive but its socket is unreachable", pid)
				return nil
			}
			color.Red("daemon is not running")
			cmd.Println("start it with: yinx daemon start")
			return nil
		}
		return err
	}

	if statusJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(out))
		return nil
	}

	printStatus(cmd, report)
	return nil
}

func printStatus(cmd *cobra.Command, report *daemon.StatusReport) {
	color.Green("daemon running (pid %d, version %s)", report.PID, report.Version)
	cmd.Printf("  uptime:   %s\n", (time.Duration(report.UptimeSeconds) * time.Second).String())

	if report.ActiveSession != nil {
		s := report.ActiveSession
		cmd.Printf("  session:  %s (%s) captures=%d blobs=%d\n",
			s.Name, s.ID, s.CaptureCount, s.BlobCount)
	} else {
		cmd.Printf("  session:  none active\n")
	}

	p := report.Pipeline
	cmd.Printf("  pipeline: submitted=%d processed=%d failed=%d dropped=%d queued=%d\n",
		p.Submitted, p.Processed, p.Failed, p.Dropped, p.Queued)
	cmd.Printf("  index:    chunks=%d vectors=%d\n", report.ChunkCount, report.VectorCount)

	g := report.Graph
	cmd.Printf("  graph:    hosts=%d ports=%d services=%d vulns=%d creds=%d\n",
		g.Hosts, g.Ports, g.Services, g.Vulnerabilities, g.Credentials)

	switch report.Database.State {
	case types.HealthStateHealthy:
		cmd.Printf("  database: %s\n", color.GreenString(report.Database.State.String()))
	default:
		cmd.Printf("  database: %s %s\n",
			color.RedString(report.Database.State.String()), report.Database.Message)
	}
}
