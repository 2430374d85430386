package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forest6511/pwsafe/internal/config"
	"github.com/forest6511/pwsafe/internal/lockout"
	"github.com/forest6511/pwsafe/internal/logger"
	"github.com/forest6511/pwsafe/pkg/datastore"
	"github.com/forest6511/pwsafe/pkg/pwsfile"
)

// Environment variables read before prompting.
const (
	envPassphrase    = "PWSAFE_PASSPHRASE"
	envNewPassphrase = "PWSAFE_NEW_PASSPHRASE"
)

// Global flags
var (
	fileFlag     string
	configFlag   string
	logLevelFlag string
	readOnlyFlag bool
)

var errReadOnly = errors.New("database opened read-only")

// State prepared by PersistentPreRunE
var (
	cfg    = config.DefaultConfig()
	log    = logger.Nop()
	dbPath string
	stdin  *bufio.Reader
)

var rootCmd = &cobra.Command{
	Use:   "pwsafe",
	Short: "pwsafe reads and edits Password Safe databases",
	Long: `A command-line editor for Password Safe databases.

Version 1, 2 and 3 files are read and written in the format they were
created with.`,
	SilenceUsage: true,
	// PersistentPreRunE runs before every subcommand. It loads the
	// configuration and sets up logging.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configFlag
		if path == "" {
			path = config.DefaultPath()
		}
		c, err := config.Load(path)
		if err != nil {
			return err
		}
		if logLevelFlag != "" {
			c.Logging.Level = logLevelFlag
		}
		l, err := logger.New(cmd.ErrOrStderr(), c.Logging.Level)
		if err != nil {
			return err
		}

		cfg = c
		log = l.WithField("cmd", cmd.Name())
		dbPath = fileFlag
		if dbPath == "" {
			dbPath = cfg.File
		}
		stdin = bufio.NewReader(cmd.InOrStdin())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&fileFlag, "file", "f", "", "Database file (default from config)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default ~/.config/pwsafe/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error, disabled")
	rootCmd.PersistentFlags().BoolVar(&readOnlyFlag, "read-only", false, "Refuse to write the database")
}

// readSecret returns the value of env when set. Otherwise it prompts on the
// terminal, or reads one line when stdin is not a terminal.
func readSecret(cmd *cobra.Command, env, prompt string) ([]byte, error) {
	if env != "" {
		if s, ok := os.LookupEnv(env); ok {
			return []byte(s), nil
		}
	}

	fd := int(syscall.Stdin) //nolint:unconvert // syscall.Stdin is not int on Windows
	if !term.IsTerminal(fd) {
		if stdin == nil {
			stdin = bufio.NewReader(cmd.InOrStdin())
		}
		line, err := stdin.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return nil, fmt.Errorf("no input for %q", strings.TrimSuffix(prompt, ": "))
		}
		return []byte(line), nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return b, nil
}

// readNewSecret is readSecret with confirmation when prompting.
func readNewSecret(cmd *cobra.Command, env, prompt string) ([]byte, error) {
	if s, ok := os.LookupEnv(env); ok {
		return []byte(s), nil
	}
	first, err := readSecret(cmd, "", prompt)
	if err != nil {
		return nil, err
	}
	second, err := readSecret(cmd, "", "Confirm "+strings.ToLower(prompt[:1])+prompt[1:])
	if err != nil {
		return nil, err
	}
	if string(first) != string(second) {
		return nil, fmt.Errorf("passphrases do not match")
	}
	return first, nil
}

// openDatabase prompts for the passphrase and opens dbPath.
func openDatabase(cmd *cobra.Command) (*pwsfile.File, []byte, error) {
	tracker := lockout.New(dbPath)
	if remaining, err := tracker.Check(); err != nil {
		if errors.Is(err, lockout.ErrCooldownActive) {
			return nil, nil, fmt.Errorf("%w: please wait %v", err, remaining.Round(time.Second))
		}
		return nil, nil, err
	}

	pass, err := readSecret(cmd, envPassphrase, "Enter passphrase: ")
	if err != nil {
		return nil, nil, err
	}
	f, err := pwsfile.Open(dbPath, pass)
	if err != nil {
		log.Warn().Str("file", dbPath).Err(err).Msg("open failed")
		if errors.Is(err, pwsfile.ErrInvalidPassphrase) {
			cooldown, ferr := tracker.Fail()
			if ferr != nil {
				log.Warn().Err(ferr).Msg("failed to record attempt")
			}
			if cooldown > 0 {
				return nil, nil, fmt.Errorf("%w: cooldown activated for %v", err, cooldown)
			}
		}
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := tracker.Reset(); err != nil {
		log.Warn().Err(err).Msg("failed to clear attempt state")
	}
	if err := pwsfile.CheckPermissions(dbPath); err != nil {
		log.Warn().Err(err).Msg("permission check")
	}
	log.Info().
		Str("file", dbPath).
		Str("version", f.Version().String()).
		Int("records", f.Store().Len()).
		Msg("opened database")
	return f, pass, nil
}

// saveDatabase writes f back to dbPath.
func saveDatabase(f *pwsfile.File, pass []byte) error {
	if readOnlyFlag {
		return fmt.Errorf("%w: %s not saved", errReadOnly, dbPath)
	}
	if err := f.Save(dbPath, pass); err != nil {
		log.Error().Str("file", dbPath).Err(err).Msg("save failed")
		return fmt.Errorf("failed to save database: %w", err)
	}
	log.Info().
		Str("file", dbPath).
		Int("records", f.Store().Len()).
		Msg("saved database")
	if info, err := pwsfile.CheckDiskSpace(dbPath); err == nil {
		warnDiskLow(info)
	}
	return nil
}

func warnDiskLow(info *pwsfile.DiskSpaceInfo) {
	if !info.Low() {
		return
	}
	log.Warn().
		Int("used_pct", info.UsedPct).
		Uint64("available_mb", info.Available/(1024*1024)).
		Msg("disk is almost full")
}

// parseIndex parses a store index argument and checks it against ds.
func parseIndex(arg string, ds *datastore.Datastore) (int, error) {
	i, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q: must be a number", arg)
	}
	if i < 0 || i >= ds.Len() {
		return 0, fmt.Errorf("%w: %d (database has %d entries)", datastore.ErrIndexOutOfRange, i, ds.Len())
	}
	return i, nil
}
