// display.go
//
// Auto-gift rules, protection and event log service for the gift marketplace
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of autogift.
// autogift is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// autogift is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with autogift.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package display

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gosimple/slug"
	"github.com/localnerve/autogift/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var occasionLabels = map[string]string{
	"birthday":         "Birthday",
	"anniversary":      "Anniversary",
	"mothers_day":      "Mother's Day",
	"fathers_day":      "Father's Day",
	"valentines_day":   "Valentine's Day",
	"christmas":        "Christmas",
	"graduation":       "Graduation",
	"new_baby":         "New Baby",
	"wedding":          "Wedding",
	"housewarming":     "Housewarming",
	"just_because":     "Just Because",
	"thanksgiving":     "Thanksgiving",
	"hanukkah":         "Hanukkah",
	"new_years":        "New Year's",
	"halloween":        "Halloween",
	"independence_day": "Independence Day",
	"other":            "Other",
}

// fixed-calendar holidays
var holidayDates = map[string]string{
	"valentines_day":   "February 14th",
	"christmas":        "December 25th",
	"new_years":        "January 1st",
	"halloween":        "October 31st",
	"independence_day": "July 4th",
}

var sourceLabels = map[models.GiftSource]string{
	models.GiftSourceWishlist: "From Wishlist",
	models.GiftSourceAI:       "AI Selected",
	models.GiftSourceBoth:     "Wishlist + AI",
	models.GiftSourceSpecific: "Specific Product",
}

// titleCase upper-cases the first letter of each space separated word and
// leaves the rest as written, so "mcDonald" becomes "McDonald".
// A Caser holds state, so one is made per call.
func titleCase(s string) string {
	upper := cases.Upper(language.English)
	words := strings.Split(s, " ")
	for i, word := range words {
		r, size := utf8.DecodeRuneInString(word)
		if size == 0 || r == utf8.RuneError {
			continue
		}
		words[i] = upper.String(word[:size]) + word[size:]
	}
	return strings.Join(words, " ")
}

// OccasionDisplayName maps an occasion code to its label.
// Unknown codes are title-cased with underscores replaced by spaces.
func OccasionDisplayName(dateType string) string {
	if label, ok := occasionLabels[dateType]; ok {
		return label
	}
	return titleCase(strings.ReplaceAll(dateType, "_", " "))
}

// NormalizeOccasionCode folds free text into an occasion code, "Mother's Day" becomes "mothers_day".
func NormalizeOccasionCode(value string) string {
	value = strings.NewReplacer("'", "", "’", "").Replace(value)
	return strings.ReplaceAll(slug.Make(value), "-", "_")
}

// RecurrenceDescription describes when the rule sends
func RecurrenceDescription(rule *models.GiftRule) string {
	switch rule.DateType {
	case "birthday", "anniversary":
		return "Sends automatically every year"
	}
	if date, ok := holidayDates[rule.DateType]; ok {
		return "Sends automatically every " + date
	}
	return "Sends automatically"
}

// SourceDisplayName returns the label for a gift source, "Smart Selection" when unknown
func SourceDisplayName(source models.GiftSource) string {
	if label, ok := sourceLabels[source]; ok {
		return label
	}
	return "Smart Selection"
}

// FormatBudgetDisplay renders a budget limit. A missing or non-positive budget shows the default.
func FormatBudgetDisplay(budget *float64) string {
	if budget == nil || *budget <= 0 {
		return "Up to $" + strconv.FormatFloat(models.DefaultBudgetLimit, 'f', -1, 64)
	}
	return "Up to $" + strconv.FormatFloat(*budget, 'f', -1, 64)
}

// IsPendingInvitation is true when the rule addresses an invitee who has not joined yet
func IsPendingInvitation(rule *models.GiftRule) bool {
	return rule.RecipientID == nil && rule.PendingRecipientEmail != nil && *rule.PendingRecipientEmail != ""
}

// RecipientDisplayName prefers the resolved connection's name, then the invitee's email local part.
func RecipientDisplayName(rule *models.GiftRule) string {
	if rule.Recipient != nil && strings.TrimSpace(rule.Recipient.Name) != "" {
		return rule.Recipient.Name
	}
	if rule.PendingRecipientEmail != nil {
		local, _, _ := strings.Cut(*rule.PendingRecipientEmail, "@")
		parts := strings.FieldsFunc(local, func(r rune) bool {
			return r == '.' || r == '_'
		})
		if len(parts) > 0 {
			return titleCase(strings.Join(parts, " "))
		}
	}
	return "Unknown Recipient"
}

// RuleDisplay is the human readable rendering of a rule returned alongside it
type RuleDisplay struct {
	Occasion          string `json:"occasion"`
	Recurrence        string `json:"recurrence"`
	Source            string `json:"source"`
	Budget            string `json:"budget"`
	Recipient         string `json:"recipient"`
	PendingInvitation bool   `json:"pending_invitation"`
}

// Describe renders all display fields for a rule
func Describe(rule *models.GiftRule) RuleDisplay {
	return RuleDisplay{
		Occasion:          OccasionDisplayName(rule.DateType),
		Recurrence:        RecurrenceDescription(rule),
		Source:            SourceDisplayName(rule.GiftSource),
		Budget:            FormatBudgetDisplay(rule.BudgetLimit),
		Recipient:         RecipientDisplayName(rule),
		PendingInvitation: IsPendingInvitation(rule),
	}
}
