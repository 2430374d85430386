package security

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/forest6511/pwsafe/pkg/datastore"
	"github.com/forest6511/pwsafe/pkg/field"
)

// SecurityScore represents the overall security assessment of a datastore.
type SecurityScore struct {
	// Overall is the total score (0-100).
	Overall int `json:"overall"`
	// Components breaks down the score into categories.
	Components ScoreComponents `json:"components"`
	// Issues contains the detected security issues.
	Issues []SecurityIssue `json:"issues"`
	// Suggestions provides actionable recommendations.
	Suggestions []string `json:"suggestions"`
}

// ScoreComponents breaks down the security score into categories.
// Each component contributes up to 25 points (total: 100).
type ScoreComponents struct {
	// StrengthScore is based on average password strength (0-25).
	StrengthScore int `json:"strength"`
	// UniquenessScore is based on percentage of unique passwords (0-25).
	UniquenessScore int `json:"uniqueness"`
	// ExpirationScore is based on percentage of non-expired passwords (0-25).
	ExpirationScore int `json:"expiration"`
	// AgeScore is based on percentage of recently changed passwords (0-25).
	AgeScore int `json:"age"`
}

// IssueType identifies the type of security issue.
type IssueType string

const (
	// IssueWeakPassword indicates a password with insufficient strength.
	IssueWeakPassword IssueType = "weak"
	// IssueDuplicatePassword indicates passwords reused across records.
	IssueDuplicatePassword IssueType = "duplicate"
	// IssueExpiringSoon indicates a password expiring within the warning period.
	IssueExpiringSoon IssueType = "expiring"
	// IssueExpired indicates a password whose lifetime has passed.
	IssueExpired IssueType = "expired"
	// IssueStale indicates a password unchanged for longer than the maximum age.
	IssueStale IssueType = "stale"
)

// Severity indicates the urgency of a security issue.
type Severity string

const (
	// SeverityCritical requires immediate attention.
	SeverityCritical Severity = "critical"
	// SeverityWarning should be addressed soon.
	SeverityWarning Severity = "warning"
	// SeverityInfo is informational only.
	SeverityInfo Severity = "info"
)

// SecurityIssue represents a detected security problem.
type SecurityIssue struct {
	Type     IssueType `json:"type"`
	Severity Severity  `json:"severity"`
	// StoreIndexes lists the affected records: one for most issues, all
	// sharing records for duplicates.
	StoreIndexes []int    `json:"store_indexes"`
	Titles       []string `json:"titles"`
	Description  string   `json:"description"`
	Suggestion   string   `json:"suggestion,omitempty"`
}

// Calculator computes security scores for a datastore.
type Calculator struct {
	hmacKey    []byte // Session-local key for duplicate detection
	expiryDays int    // Days until expiration to warn (default 30)
	maxAgeDays int    // Days after which an unchanged password is stale (default 365)
	now        func() time.Time
}

// NewCalculator creates a calculator whose duplicate-detection key is drawn
// from rand.
func NewCalculator(rand io.Reader) (*Calculator, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand, key); err != nil {
		return nil, fmt.Errorf("security: failed to generate session key: %w", err)
	}
	return &Calculator{
		hmacKey:    key,
		expiryDays: 30,
		maxAgeDays: 365,
		now:        time.Now,
	}, nil
}

// WithExpiryDays sets the number of days to consider as "expiring soon".
func (c *Calculator) WithExpiryDays(days int) *Calculator {
	c.expiryDays = days
	return c
}

// WithMaxAgeDays sets the age after which an unchanged password is stale.
func (c *Calculator) WithMaxAgeDays(days int) *Calculator {
	c.maxAgeDays = days
	return c
}

// WithClock replaces the time source.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// CalculateScore computes the full security score for the datastore.
func (c *Calculator) CalculateScore(ds *datastore.Datastore) *SecurityScore {
	// Empty datastore: perfect score
	if ds.Len() == 0 {
		return &SecurityScore{
			Overall: 100,
			Components: ScoreComponents{
				StrengthScore:   25,
				UniquenessScore: 25,
				ExpirationScore: 25,
				AgeScore:        25,
			},
			Issues:      []SecurityIssue{},
			Suggestions: []string{},
		}
	}

	strengthScore, weakIssues := c.calculateStrengthScore(ds)
	uniquenessScore, dupIssues := c.calculateUniquenessScore(ds)
	expirationScore, expIssues := c.calculateExpirationScore(ds)
	ageScore, ageIssues := c.calculateAgeScore(ds)

	allIssues := make([]SecurityIssue, 0, len(weakIssues)+len(dupIssues)+len(expIssues)+len(ageIssues))
	allIssues = append(allIssues, weakIssues...)
	allIssues = append(allIssues, dupIssues...)
	allIssues = append(allIssues, expIssues...)
	allIssues = append(allIssues, ageIssues...)

	return &SecurityScore{
		Overall: strengthScore + uniquenessScore + expirationScore + ageScore,
		Components: ScoreComponents{
			StrengthScore:   strengthScore,
			UniquenessScore: uniquenessScore,
			ExpirationScore: expirationScore,
			AgeScore:        ageScore,
		},
		Issues:      allIssues,
		Suggestions: generateSuggestions(allIssues),
	}
}

// FindWeakPasswords returns an issue for every record with a weak password.
func (c *Calculator) FindWeakPasswords(ds *datastore.Datastore) []SecurityIssue {
	_, issues := c.calculateStrengthScore(ds)
	return issues
}

// calculateStrengthScore evaluates password strength across all records.
// Returns score (0-25) and weak password issues.
func (c *Calculator) calculateStrengthScore(ds *datastore.Datastore) (int, []SecurityIssue) {
	var issues []SecurityIssue
	totalPoints := 0
	passwordCount := 0

	for i, rec := range ds.Records() {
		password := rec.Password()
		if password == "" {
			continue
		}

		passwordCount++
		strength := Strength(password)
		totalPoints += strength.Points()

		if strength == PasswordWeak {
			issues = append(issues, SecurityIssue{
				Type:         IssueWeakPassword,
				Severity:     SeverityWarning,
				StoreIndexes: []int{i},
				Titles:       []string{rec.Title()},
				Description:  "Password has insufficient strength (" + formatLength(len([]rune(password))) + ")",
				Suggestion:   "Use a longer password (14+ characters recommended)",
			})
		}
	}

	// No passwords: full score (N/A)
	if passwordCount == 0 {
		return 25, issues
	}

	// Average points are already on the 0-25 scale
	score := min(totalPoints/passwordCount, 25)
	return score, issues
}

// calculateUniquenessScore evaluates password reuse across records.
// Returns score (0-25) and duplicate issues.
func (c *Calculator) calculateUniquenessScore(ds *datastore.Datastore) (int, []SecurityIssue) {
	duplicates := c.FindDuplicates(ds)

	totalPasswords := 0
	for _, rec := range ds.Records() {
		if normalizeValue(rec.Password()) != "" {
			totalPasswords++
		}
	}

	// No passwords: full score (N/A)
	if totalPasswords == 0 {
		return 25, nil
	}

	// Every duplicate group collapses to one unique value
	uniqueCount := totalPasswords
	var issues []SecurityIssue
	for _, dup := range duplicates {
		uniqueCount -= dup.Count - 1
		issues = append(issues, SecurityIssue{
			Type:         IssueDuplicatePassword,
			Severity:     SeverityWarning,
			StoreIndexes: dup.StoreIndexes,
			Titles:       dup.Titles,
			Description:  "Multiple records share the same password",
			Suggestion:   "Use unique passwords for each record",
		})
	}

	uniquenessRatio := float64(uniqueCount) / float64(totalPasswords)
	return int(uniquenessRatio * 25), issues
}

// calculateExpirationScore evaluates the password lifetime field.
// Returns score (0-25) and expiration issues.
func (c *Calculator) calculateExpirationScore(ds *datastore.Datastore) (int, []SecurityIssue) {
	var issues []SecurityIssue
	now := c.now()
	warningThreshold := now.AddDate(0, 0, c.expiryDays)

	withExpiration := 0
	nonExpiredCount := 0

	for i, rec := range ds.Records() {
		expiresAt, ok := rec.Time(field.TypePasswordLifetime)
		if !ok || expiresAt.Unix() == 0 {
			continue // No expiration set
		}
		withExpiration++

		//nolint:gocritic // if-else chain is clearer for time comparisons
		if expiresAt.Before(now) {
			issues = append(issues, SecurityIssue{
				Type:         IssueExpired,
				Severity:     SeverityCritical,
				StoreIndexes: []int{i},
				Titles:       []string{rec.Title()},
				Description:  "Password has expired",
				Suggestion:   "Change the password and set a new lifetime",
			})
		} else if expiresAt.Before(warningThreshold) {
			nonExpiredCount++
			daysLeft := int(expiresAt.Sub(now).Hours() / 24)
			issues = append(issues, SecurityIssue{
				Type:         IssueExpiringSoon,
				Severity:     SeverityWarning,
				StoreIndexes: []int{i},
				Titles:       []string{rec.Title()},
				Description:  "Password expires in " + formatDays(daysLeft),
				Suggestion:   "Plan to change the password before it expires",
			})
		} else {
			nonExpiredCount++
		}
	}

	// No lifetimes set: full score (N/A)
	if withExpiration == 0 {
		return 25, issues
	}
	return int(float64(nonExpiredCount) / float64(withExpiration) * 25), issues
}

// calculateAgeScore evaluates the password modification time.
// Returns score (0-25) and stale password issues.
func (c *Calculator) calculateAgeScore(ds *datastore.Datastore) (int, []SecurityIssue) {
	var issues []SecurityIssue
	cutoff := c.now().AddDate(0, 0, -c.maxAgeDays)

	withAge := 0
	freshCount := 0
	for i, rec := range ds.Records() {
		changed, ok := rec.Time(field.TypePasswordModTime)
		if !ok {
			continue
		}
		withAge++
		if !changed.Before(cutoff) {
			freshCount++
			continue
		}
		issues = append(issues, SecurityIssue{
			Type:         IssueStale,
			Severity:     SeverityInfo,
			StoreIndexes: []int{i},
			Titles:       []string{rec.Title()},
			Description:  "Password unchanged since " + changed.Format(time.DateOnly),
			Suggestion:   "Rotate passwords at least every " + formatDays(c.maxAgeDays),
		})
	}

	if withAge == 0 {
		return 25, issues
	}
	return int(float64(freshCount) / float64(withAge) * 25), issues
}

// generateSuggestions creates actionable recommendations based on issues.
func generateSuggestions(issues []SecurityIssue) []string {
	present := make(map[IssueType]bool)
	for _, issue := range issues {
		present[issue.Type] = true
	}

	suggestions := []string{}
	if present[IssueWeakPassword] {
		suggestions = append(suggestions, "Update weak passwords with stronger alternatives (14+ characters)")
	}
	if present[IssueDuplicatePassword] {
		suggestions = append(suggestions, "Replace duplicate passwords with unique values")
	}
	if present[IssueExpired] {
		suggestions = append(suggestions, "Change expired passwords immediately")
	}
	if present[IssueExpiringSoon] {
		suggestions = append(suggestions, "Plan to change expiring passwords before they expire")
	}
	if present[IssueStale] {
		suggestions = append(suggestions, "Rotate passwords that have not changed in a long time")
	}
	return suggestions
}

// formatLength returns a human-readable length description.
func formatLength(n int) string {
	if n == 1 {
		return "1 character"
	}
	return strconv.Itoa(n) + " characters"
}

// formatDays returns a human-readable day count.
func formatDays(days int) string {
	if days == 0 {
		return "today"
	}
	if days == 1 {
		return "1 day"
	}
	return strconv.Itoa(days) + " days"
}
