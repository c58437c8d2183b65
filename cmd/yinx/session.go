package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/neur0map/yinx/internal/config"
	"github.com/neur0map/yinx/internal/database"
	"github.com/neur0map/yinx/internal/types"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage capture sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Start a new capture session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionStart,
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the active session",
	RunE:  runSessionStop,
}

var sessionPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the active session",
	RunE:  runSessionPause,
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the most recently paused session",
	RunE:  runSessionResume,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE:  runSessionList,
}

func init() {
	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionStopCmd)
	sessionCmd.AddCommand(sessionPauseCmd)
	sessionCmd.AddCommand(sessionResumeCmd)
	sessionCmd.AddCommand(sessionListCmd)
}

// openSessionDAO opens the shared database for session bookkeeping.
// The busy timeout lets the CLI write alongside the daemon.
func openSessionDAO(cfg *config.Config) (database.SessionDAO, *database.DB, error) {
	db, err := database.Open(filepath.Join(cfg.Storage.DataRoot, "yinx.db"))
	if err != nil {
		return nil, nil, err
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return database.NewSessionDAO(db), db, nil
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sessions, db, err := openSessionDAO(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	if active, err := sessions.GetActive(ctx); err == nil {
		// One active session at a time; stop the previous one first.
		now := time.Now().UTC()
		if err := sessions.UpdateStatus(ctx, active.ID, types.SessionStatusStopped, &now); err != nil {
			return err
		}
		cmd.Printf("stopped previous session %s\n", active.Name)
	}

	session := types.NewSession(args[0])
	if err := sessions.Create(ctx, session); err != nil {
		return err
	}
	color.Green("session %s started (%s)", session.Name, session.ID)
	return nil
}

func runSessionStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sessions, db, err := openSessionDAO(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	active, err := sessions.GetActive(ctx)
	if err != nil {
		if types.CodeOf(err) == types.SESSION_NOT_FOUND {
			cmd.Println("no active session")
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	if err := sessions.UpdateStatus(ctx, active.ID, types.SessionStatusStopped, &now); err != nil {
		return err
	}
	color.Green("session %s stopped (captures=%d blobs=%d)",
		active.Name, active.CaptureCount, active.BlobCount)
	return nil
}

func runSessionPause(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sessions, db, err := openSessionDAO(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	active, err := sessions.GetActive(ctx)
	if err != nil {
		if types.CodeOf(err) == types.SESSION_NOT_FOUND {
			cmd.Println("no active session")
			return nil
		}
		return err
	}

	if err := sessions.UpdateStatus(ctx, active.ID, types.SessionStatusPaused, nil); err != nil {
		return err
	}
	color.Yellow("session %s paused", active.Name)
	return nil
}

func runSessionResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sessions, db, err := openSessionDAO(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	if _, err := sessions.GetActive(ctx); err == nil {
		return fmt.Errorf("a session is already active; stop or pause it first")
	} else if types.CodeOf(err) != types.SESSION_NOT_FOUND {
		return err
	}

	list, err := sessions.List(ctx)
	if err != nil {
		return err
	}
	for _, s := range list {
		if s.Status != types.SessionStatusPaused {
			continue
		}
		if err := sessions.UpdateStatus(ctx, s.ID, types.SessionStatusActive, nil); err != nil {
			return err
		}
		color.Green("session %s resumed", s.Name)
		return nil
	}

	cmd.Println("no paused session")
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sessions, db, err := openSessionDAO(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := sessions.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(list) == 0 {
		cmd.Println("no sessions")
		return nil
	}

	for _, s := range list {
		line := formatSession(s)
		if s.Status == types.SessionStatusActive {
			color.Green("%s", line)
		} else {
			cmd.Println(line)
		}
	}
	return nil
}

func formatSession(s *types.Session) string {
	ended := "running"
	if s.StoppedAt != nil {
		ended = s.StoppedAt.Format(time.RFC3339)
	}
	return fmt.Sprintf("%s  %-7s  %s  captures=%d blobs=%d  ended=%s",
		s.StartedAt.Format(time.RFC3339), s.Status, s.Name,
		s.CaptureCount, s.BlobCount, ended)
}
