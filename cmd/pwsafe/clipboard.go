package main

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

// Copy command flags
var (
	copyUser bool
)

func init() {
	rootCmd.AddCommand(copyCmd)

	copyCmd.Flags().BoolVarP(&copyUser, "user", "u", false, "Copy the username instead of the password")
}

var copyCmd = &cobra.Command{
	Use:   "copy <index>",
	Short: "Copy an entry's password to the clipboard",
	Long: `Copy the password (or with --user the username) of an entry to the
system clipboard. The clipboard is accessible to all processes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, _, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		ds := f.Store()
		defer ds.Close()

		i, err := parseIndex(args[0], ds)
		if err != nil {
			return err
		}
		rec, err := ds.Record(i)
		if err != nil {
			return err
		}

		what, text := "Password", rec.Password()
		if copyUser {
			what, text = "Username", rec.Username()
		}
		if err := copyToClipboard(text); err != nil {
			return fmt.Errorf("failed to copy to clipboard: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s of entry %d copied to clipboard\n", what, i)
		return nil
	},
}

// clipboardCommand returns the command that reads clipboard contents from
// its standard input.
var clipboardCommand = func() (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("pbcopy"), nil
	case "linux":
		// Try xclip first, then xsel
		if _, err := exec.LookPath("xclip"); err == nil {
			return exec.Command("xclip", "-selection", "clipboard"), nil
		} else if _, err := exec.LookPath("xsel"); err == nil {
			return exec.Command("xsel", "--clipboard", "--input"), nil
		}
		return nil, fmt.Errorf("clipboard tool not found: install xclip or xsel")
	case "windows":
		return exec.Command("clip"), nil
	default:
		return nil, fmt.Errorf("clipboard not supported on %s", runtime.GOOS)
	}
}

// copyToClipboard copies text to the system clipboard
func copyToClipboard(text string) error {
	cmd, err := clipboardCommand()
	if err != nil {
		return err
	}
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}
