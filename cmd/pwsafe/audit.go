package main

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/pwsafe/pkg/security"
)

// Audit command flags
var (
	auditVerbose bool
	auditJSON    bool
	auditDays    int
	auditMaxAge  int
)

// auditCmd scores the password hygiene of a database.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Analyze database password health",
	Long: `Analyze the passwords stored in the database and get recommendations.

The score is calculated from:
  - Password Strength (0-25): Average strength of the passwords
  - Uniqueness (0-25): Percentage of unique passwords
  - Expiration (0-25): Percentage of passwords within their lifetime
  - Age (0-25): Percentage of passwords changed within --max-age days

Example:
  pwsafe audit              # Show score and issues
  pwsafe audit --verbose    # Also show suggestions
  pwsafe audit --json       # Output in JSON format`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		calc, err := newCalculator()
		if err != nil {
			return err
		}
		f, _, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer f.Store().Close()

		score := calc.CalculateScore(f.Store())
		log.Debug().Int("score", score.Overall).Int("issues", len(score.Issues)).Msg("audit complete")

		if auditJSON {
			return outputAuditJSON(cmd.OutOrStdout(), score)
		}
		outputAuditText(cmd.OutOrStdout(), score, auditVerbose)
		return nil
	},
}

// auditDuplicatesCmd lists reused passwords.
var auditDuplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List entries that share a password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		calc, err := newCalculator()
		if err != nil {
			return err
		}
		f, _, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer f.Store().Close()

		out := cmd.OutOrStdout()
		groups := calc.FindDuplicates(f.Store())
		if len(groups) == 0 {
			fmt.Fprintln(out, "No duplicate passwords found")
			return nil
		}

		fmt.Fprintf(out, "Duplicate Passwords (%d groups found)\n\n", len(groups))
		for i, group := range groups {
			fmt.Fprintf(out, "%d. %d entries share the same password:\n", i+1, group.Count)
			for j, idx := range group.StoreIndexes {
				fmt.Fprintf(out, "   - [%d] %s\n", idx, group.Titles[j])
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

// auditWeakCmd lists weak passwords.
var auditWeakCmd = &cobra.Command{
	Use:   "weak",
	Short: "List entries with weak passwords",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		calc, err := newCalculator()
		if err != nil {
			return err
		}
		f, _, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer f.Store().Close()

		out := cmd.OutOrStdout()
		issues := calc.FindWeakPasswords(f.Store())
		if len(issues) == 0 {
			fmt.Fprintln(out, "No weak passwords found")
			return nil
		}

		fmt.Fprintf(out, "Weak Passwords (%d found)\n\n", len(issues))
		for i, issue := range issues {
			fmt.Fprintf(out, "%d. %s\n", i+1, issueTarget(issue))
			fmt.Fprintf(out, "   %s\n\n", issue.Description)
		}
		return nil
	},
}

func newCalculator() (*security.Calculator, error) {
	calc, err := security.NewCalculator(rand.Reader)
	if err != nil {
		return nil, err
	}
	return calc.WithExpiryDays(auditDays).WithMaxAgeDays(auditMaxAge), nil
}

// outputAuditJSON outputs the security score as JSON.
func outputAuditJSON(w io.Writer, score *security.SecurityScore) error {
	data, err := json.MarshalIndent(score, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// outputAuditText outputs the security score as formatted text.
func outputAuditText(w io.Writer, score *security.SecurityScore, verbose bool) {
	var rating string
	switch {
	case score.Overall >= 90:
		rating = "Excellent"
	case score.Overall >= 70:
		rating = "Good"
	case score.Overall >= 50:
		rating = "Fair"
	default:
		rating = "Needs Attention"
	}

	fmt.Fprintf(w, "Security Score: %d/100 (%s)\n\n", score.Overall, rating)

	fmt.Fprintln(w, "Components:")
	fmt.Fprintf(w, "  Password Strength: %2d/25 %s\n", score.Components.StrengthScore, progressBar(score.Components.StrengthScore, 25))
	fmt.Fprintf(w, "  Uniqueness:        %2d/25 %s\n", score.Components.UniquenessScore, progressBar(score.Components.UniquenessScore, 25))
	fmt.Fprintf(w, "  Expiration:        %2d/25 %s\n", score.Components.ExpirationScore, progressBar(score.Components.ExpirationScore, 25))
	fmt.Fprintf(w, "  Age:               %2d/25 %s\n", score.Components.AgeScore, progressBar(score.Components.AgeScore, 25))
	fmt.Fprintln(w)

	if len(score.Issues) > 0 {
		fmt.Fprintf(w, "Issues (%d):\n", len(score.Issues))
		for i, issue := range score.Issues {
			fmt.Fprintf(w, "  %d. [%s] %s: %s\n", i+1, strings.ToUpper(string(issue.Type)), issueTarget(issue), issue.Description)
		}
		fmt.Fprintln(w)
	}

	if len(score.Suggestions) > 0 && verbose {
		fmt.Fprintln(w, "Suggestions:")
		for _, suggestion := range score.Suggestions {
			fmt.Fprintf(w, "  - %s\n", suggestion)
		}
		fmt.Fprintln(w)
	}
}

// issueTarget names the entries an issue refers to.
func issueTarget(issue security.SecurityIssue) string {
	parts := make([]string, len(issue.StoreIndexes))
	for i, idx := range issue.StoreIndexes {
		title := ""
		if i < len(issue.Titles) {
			title = issue.Titles[i]
		}
		parts[i] = fmt.Sprintf("[%d] %q", idx, title)
	}
	return strings.Join(parts, ", ")
}

// progressBar creates a simple ASCII progress bar.
func progressBar(value, maxVal int) string {
	width := 20
	filled := value * width / maxVal
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.AddCommand(auditDuplicatesCmd)
	auditCmd.AddCommand(auditWeakCmd)

	auditCmd.Flags().BoolVarP(&auditVerbose, "verbose", "v", false, "Show suggestions")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Output in JSON format")
	auditCmd.PersistentFlags().IntVar(&auditDays, "days", 30, "Expiration warning window in days")
	auditCmd.PersistentFlags().IntVar(&auditMaxAge, "max-age", 365, "Days after which an unchanged password is stale")
}
