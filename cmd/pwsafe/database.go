package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forest6511/pwsafe/pkg/field"
	"github.com/forest6511/pwsafe/pkg/pwsfile"
	"github.com/forest6511/pwsafe/pkg/security"
)

// Database command flags
var (
	initVersion      int
	initIterations   uint32
	passwdIterations uint32
)

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(passwdCmd)
	rootCmd.AddCommand(infoCmd)

	initCmd.Flags().IntVar(&initVersion, "format-version", 0, "File format version 1, 2 or 3 (default from config)")
	initCmd.Flags().Uint32Var(&initIterations, "iterations", 0, "V3 key-stretch iterations (default from config)")
	passwdCmd.Flags().Uint32Var(&passwdIterations, "iterations", 0, "Also change the V3 key-stretch iterations")
}

// initCmd creates an empty database
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new empty database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(dbPath); err == nil {
			return fmt.Errorf("database already exists at %s", dbPath)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to check %s: %w", dbPath, err)
		}

		version := cfg.FormatVersion
		if initVersion != 0 {
			version = initVersion
		}
		f, err := pwsfile.New(field.Version(version))
		if err != nil {
			return err
		}
		if f.Version() == field.V3 {
			iterations := cfg.Iterations
			if initIterations != 0 {
				iterations = initIterations
			}
			if err := f.SetIterations(iterations); err != nil {
				return err
			}
		}

		pass, err := readNewSecret(cmd, envPassphrase, "Enter new passphrase: ")
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if s := security.Strength(string(pass)); s < security.PasswordGood {
			fmt.Fprintf(out, "Warning: passphrase strength is %s\n", s)
		}

		if err := saveDatabase(f, pass); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database (%s) initialized at %s\n", f.Version(), dbPath)
		return nil
	},
}

// passwdCmd changes the database passphrase
var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the database passphrase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, _, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer f.Store().Close()

		if passwdIterations != 0 {
			if f.Version() != field.V3 {
				return fmt.Errorf("--iterations applies to %s files only, database is %s", field.V3, f.Version())
			}
			if err := f.SetIterations(passwdIterations); err != nil {
				return err
			}
		}

		pass, err := readNewSecret(cmd, envNewPassphrase, "Enter new passphrase: ")
		if err != nil {
			return err
		}
		if err := saveDatabase(f, pass); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Passphrase changed")
		return nil
	},
}

// infoCmd prints container details
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show database format details",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, _, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer f.Store().Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "File:     %s\n", dbPath)
		fmt.Fprintf(out, "Version:  %s\n", f.Version())
		if f.Version() == field.V3 {
			fmt.Fprintf(out, "Iterations: %d\n", f.Iterations())
		}
		fmt.Fprintf(out, "Entries:  %d\n", f.Store().Len())
		fmt.Fprintf(out, "Groups:   %d\n", len(f.Store().Groups()))
		return nil
	},
}
