package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/pwsafe/pkg/datastore"
	"github.com/forest6511/pwsafe/pkg/field"
	"github.com/forest6511/pwsafe/pkg/passgen"
	"github.com/forest6511/pwsafe/pkg/record"
)

const maskedValue = "********"

// Flags for list command
var (
	listAll bool
)

// Flags for show and dump commands
var (
	showReveal bool
)

// Entry flags shared by add and edit
var (
	entryTitle    string
	entryUser     string
	entryPassword string
	entryNotes    string
	entryURL      string
	entryGroup    string
	entryGenerate bool
)

var entryFlagNames = []string{"title", "user", "password", "notes", "url", "group", "generate"}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)

	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "List every entry with its group instead of one group level")
	showCmd.Flags().BoolVar(&showReveal, "reveal", false, "Show the password in clear text")
	dumpCmd.Flags().BoolVar(&showReveal, "reveal", false, "Show the password bytes")

	for _, c := range []*cobra.Command{addCmd, editCmd} {
		c.Flags().StringVar(&entryTitle, "title", "", "Entry title")
		c.Flags().StringVarP(&entryUser, "user", "u", "", "Username")
		c.Flags().StringVarP(&entryPassword, "password", "p", "", "Password (prompted when omitted on add)")
		c.Flags().StringVar(&entryNotes, "notes", "", "Notes")
		c.Flags().StringVar(&entryURL, "url", "", "URL (V3 only)")
		c.Flags().StringVarP(&entryGroup, "group", "g", "", "Group path, levels separated by '.' (V2 and V3)")
		c.Flags().BoolVar(&entryGenerate, "generate", false, "Generate the password from the configured policy")
	}
	_ = addCmd.MarkFlagRequired("title")
}

// listCmd lists one level of the group hierarchy
var listCmd = &cobra.Command{
	Use:   "list [group]",
	Short: "List groups and entries",
	Long: `List the child groups and entries of a group. Without an argument the
top level is listed. Group levels are separated by '.', e.g. "Work.Email".

Use --all to list every entry with its full group path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, _, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		ds := f.Store()
		defer ds.Close()

		out := cmd.OutOrStdout()
		if listAll {
			for _, e := range ds.SparseEntries() {
				fmt.Fprintf(out, "%4d  %-24s %-24s %s\n", e.StoreIndex, e.Group, e.Title, e.Username)
			}
			return nil
		}

		group := ""
		if len(args) == 1 {
			group = strings.Trim(args[0], datastore.GroupSeparator)
		}
		elements := ds.GroupsUnder(group)
		if len(elements) == 0 && group != "" {
			return fmt.Errorf("group %q not found", group)
		}
		printElements(out, elements)
		return nil
	},
}

func printElements(w io.Writer, elements []datastore.Element) {
	for _, el := range elements {
		switch el.Kind {
		case datastore.ElementGroup:
			fmt.Fprintf(w, "   +  %s\n", el.Name)
		case datastore.ElementRecord:
			if el.Entry.Username != "" {
				fmt.Fprintf(w, "%4d  %s [%s]\n", el.Entry.StoreIndex, el.Name, el.Entry.Username)
			} else {
				fmt.Fprintf(w, "%4d  %s\n", el.Entry.StoreIndex, el.Name)
			}
		}
	}
}

// showCmd prints one entry
var showCmd = &cobra.Command{
	Use:   "show <index>",
	Short: "Show the fields of an entry",
	Args:  cobra.ExactArgs(1),
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
		rec, err := ds.GetEntry(i)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, fl := range rec.Fields() {
			value := fl.String()
			if fl.Type() == field.TypePassword && !showReveal {
				value = maskedValue
			}
			fmt.Fprintf(out, "%-16s %s\n", fl.Type().String()+":", value)
		}
		return nil
	},
}

// dumpCmd prints the raw field table of an entry
var dumpCmd = &cobra.Command{
	Use:   "dump <index>",
	Short: "Show the raw fields of an entry",
	Long: `Show every field of an entry as stored: type id, name, length and
payload bytes in hex. Unknown field types are listed too.`,
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
		rec, err := ds.GetEntry(i)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-4s  %-16s %5s  %s\n", "TYPE", "NAME", "LEN", "DATA")
		for _, fl := range rec.Fields() {
			data := hex.EncodeToString(fl.Bytes())
			if fl.Type() == field.TypePassword && !showReveal {
				data = maskedValue
			}
			known := ""
			if !fl.Known() {
				known = " (unknown)"
			}
			fmt.Fprintf(out, "0x%02x  %-16s %5d  %s%s\n", uint8(fl.Type()), fl.Type(), fl.Len(), data, known)
		}
		return nil
	},
}

// addCmd appends an entry
var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an entry",
	Long: `Add an entry to the database.

Examples:
  pwsafe add --title bank --user alice --group Personal.Finance
  pwsafe add --title mail --generate`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, pass, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		ds := f.Store()
		defer ds.Close()

		rec, err := record.New(ds.Version(), rand.Reader)
		if err != nil {
			return err
		}

		password := entryPassword
		switch {
		case entryGenerate:
			password, err = passgen.Generate(rand.Reader, cfg.Generator.Policy())
			if err != nil {
				return fmt.Errorf("failed to generate password: %w", err)
			}
		case !cmd.Flags().Changed("password"):
			b, err := readSecret(cmd, "", "Entry password: ")
			if err != nil {
				return err
			}
			password = string(b)
		}

		now := time.Now()
		if err := applyEntryFlags(cmd, rec); err != nil {
			return err
		}
		if err := setPassword(rec, password, now); err != nil {
			return err
		}
		if err := rec.Touch(now); err != nil {
			return err
		}

		i, err := ds.Append(rec)
		if err != nil {
			return err
		}
		if err := saveDatabase(f, pass); err != nil {
			return err
		}
		log.Debug().Int("index", i).Msg("entry added")
		fmt.Fprintf(cmd.OutOrStdout(), "Added entry %d (%s)\n", i, rec.Title())
		return nil
	},
}

// editCmd changes fields of an entry
var editCmd = &cobra.Command{
	Use:   "edit <index>",
	Short: "Change fields of an entry",
	Long: `Change fields of an entry. Only the given flags are applied; an empty
value clears the field.

Example:
  pwsafe edit 3 --user bob --generate`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, pass, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		ds := f.Store()
		defer ds.Close()

		i, err := parseIndex(args[0], ds)
		if err != nil {
			return err
		}
		rec, err := ds.GetEntry(i)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if !anyChanged(cmd, entryFlagNames...) {
			return fmt.Errorf("nothing to change: give at least one field flag")
		}

		now := time.Now()
		if err := applyEntryFlags(cmd, rec); err != nil {
			return err
		}
		switch {
		case entryGenerate:
			password, err := passgen.Generate(rand.Reader, cfg.Generator.Policy())
			if err != nil {
				return fmt.Errorf("failed to generate password: %w", err)
			}
			if err := setPassword(rec, password, now); err != nil {
				return err
			}
		case flags.Changed("password"):
			if err := setPassword(rec, entryPassword, now); err != nil {
				return err
			}
		}
		if err := rec.Touch(now); err != nil {
			return err
		}

		if err := ds.Update(i, rec); err != nil {
			return err
		}
		if err := saveDatabase(f, pass); err != nil {
			return err
		}
		log.Debug().Int("index", i).Msg("entry updated")
		fmt.Fprintf(cmd.OutOrStdout(), "Updated entry %d (%s)\n", i, rec.Title())
		return nil
	},
}

// deleteCmd removes an entry
var deleteCmd = &cobra.Command{
	Use:     "rm <index>",
	Aliases: []string{"delete"},
	Short:   "Remove an entry",
	Long:    `Remove an entry. The store indexes of later entries shift down by one.`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, pass, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		ds := f.Store()
		defer ds.Close()

		i, err := parseIndex(args[0], ds)
		if err != nil {
			return err
		}
		e, err := ds.SparseEntry(i)
		if err != nil {
			return err
		}
		if err := ds.Delete(i); err != nil {
			return err
		}
		if err := saveDatabase(f, pass); err != nil {
			return err
		}
		log.Debug().Int("index", i).Msg("entry deleted")
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted entry %d (%s)\n", i, e.Title)
		return nil
	},
}

// applyEntryFlags copies the changed text flags of cmd into rec.
func applyEntryFlags(cmd *cobra.Command, rec *record.Record) error {
	flags := cmd.Flags()
	fields := []struct {
		flag  string
		typ   field.TypeID
		value string
	}{
		{"title", field.TypeTitle, entryTitle},
		{"user", field.TypeUsername, entryUser},
		{"notes", field.TypeNotes, entryNotes},
		{"url", field.TypeURL, entryURL},
		{"group", field.TypeGroup, strings.Trim(entryGroup, datastore.GroupSeparator)},
	}
	for _, fl := range fields {
		if !flags.Changed(fl.flag) {
			continue
		}
		if err := rec.SetText(fl.typ, fl.value); err != nil {
			return fmt.Errorf("--%s: %w", fl.flag, err)
		}
	}
	return nil
}

// setPassword stores password and, where the format has one, its change time.
func setPassword(rec *record.Record, password string, now time.Time) error {
	if err := rec.SetPassword(password); err != nil {
		return err
	}
	if field.Known(rec.Version(), field.TypePasswordModTime) {
		return rec.SetTime(field.TypePasswordModTime, now)
	}
	return nil
}

func anyChanged(cmd *cobra.Command, names ...string) bool {
	for _, name := range names {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}
