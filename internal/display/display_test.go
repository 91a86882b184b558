package display_test

import (
	"testing"

	"github.com/localnerve/autogift/internal/display"
	"github.com/localnerve/autogift/internal/models"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string      { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestOccasionDisplayName(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"mothers_day", "Mother's Day"},
		{"birthday", "Birthday"},
		{"new_years", "New Year's"},
		{"super_bowl_party", "Super Bowl Party"},
		{"bar_mitzvah", "Bar Mitzvah"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, display.OccasionDisplayName(tt.code))
		})
	}
}

func TestNormalizeOccasionCode(t *testing.T) {
	assert.Equal(t, "mothers_day", display.NormalizeOccasionCode("Mother's Day"))
	assert.Equal(t, "valentines_day", display.NormalizeOccasionCode("Valentine’s Day"))
	assert.Equal(t, "new_baby", display.NormalizeOccasionCode("new-baby"))
	assert.Equal(t, "just_because", display.NormalizeOccasionCode("just_because"))
}

func TestRecurrenceDescription(t *testing.T) {
	assert.Equal(t, "Sends automatically every year", display.RecurrenceDescription(&models.GiftRule{DateType: "birthday"}))
	assert.Equal(t, "Sends automatically every year", display.RecurrenceDescription(&models.GiftRule{DateType: "anniversary"}))
	assert.Equal(t, "Sends automatically every December 25th", display.RecurrenceDescription(&models.GiftRule{DateType: "christmas"}))
	assert.Equal(t, "Sends automatically every February 14th", display.RecurrenceDescription(&models.GiftRule{DateType: "valentines_day"}))
	assert.Equal(t, "Sends automatically", display.RecurrenceDescription(&models.GiftRule{DateType: "graduation"}))
}

func TestSourceDisplayName(t *testing.T) {
	assert.Equal(t, "From Wishlist", display.SourceDisplayName(models.GiftSourceWishlist))
	assert.Equal(t, "AI Selected", display.SourceDisplayName(models.GiftSourceAI))
	assert.Equal(t, "Wishlist + AI", display.SourceDisplayName(models.GiftSourceBoth))
	assert.Equal(t, "Specific Product", display.SourceDisplayName(models.GiftSourceSpecific))
	assert.Equal(t, "Smart Selection", display.SourceDisplayName("mystery"))
}

func TestFormatBudgetDisplay(t *testing.T) {
	assert.Equal(t, "Up to $50", display.FormatBudgetDisplay(nil))
	assert.Equal(t, "Up to $50", display.FormatBudgetDisplay(floatPtr(0)))
	assert.Equal(t, "Up to $120", display.FormatBudgetDisplay(floatPtr(120)))
	assert.Equal(t, "Up to $19.99", display.FormatBudgetDisplay(floatPtr(19.99)))
}

func TestRecipientDisplayName(t *testing.T) {
	pending := &models.GiftRule{PendingRecipientEmail: strPtr("jane.doe@x.com")}
	assert.Equal(t, "Jane Doe", display.RecipientDisplayName(pending))

	underscored := &models.GiftRule{PendingRecipientEmail: strPtr("mary_ann_smith@x.com")}
	assert.Equal(t, "Mary Ann Smith", display.RecipientDisplayName(underscored))

	// only the first letter of each word changes
	mixed := &models.GiftRule{PendingRecipientEmail: strPtr("mcDonald.x@example.com")}
	assert.Equal(t, "McDonald X", display.RecipientDisplayName(mixed))

	accented := &models.GiftRule{PendingRecipientEmail: strPtr("émile.zola@example.com")}
	assert.Equal(t, "Émile Zola", display.RecipientDisplayName(accented))

	resolved := &models.GiftRule{
		RecipientID: strPtr("p-1"),
		Recipient:   &models.Profile{ID: "p-1", Name: "Sam Carter"},
	}
	assert.Equal(t, "Sam Carter", display.RecipientDisplayName(resolved))

	assert.Equal(t, "Unknown Recipient", display.RecipientDisplayName(&models.GiftRule{RecipientID: strPtr("p-2")}))
	assert.Equal(t, "Unknown Recipient", display.RecipientDisplayName(&models.GiftRule{PendingRecipientEmail: strPtr("@x.com")}))
}

func TestIsPendingInvitation(t *testing.T) {
	assert.True(t, display.IsPendingInvitation(&models.GiftRule{PendingRecipientEmail: strPtr("a@b.c")}))
	assert.False(t, display.IsPendingInvitation(&models.GiftRule{RecipientID: strPtr("p-1")}))
	assert.False(t, display.IsPendingInvitation(&models.GiftRule{PendingRecipientEmail: strPtr("")}))
}

func TestDescribe(t *testing.T) {
	rule := &models.GiftRule{
		DateType:              "mothers_day",
		GiftSource:            models.GiftSourceWishlist,
		BudgetLimit:           floatPtr(75),
		PendingRecipientEmail: strPtr("pat.lee@example.com"),
	}
	d := display.Describe(rule)
	assert.Equal(t, "Mother's Day", d.Occasion)
	assert.Equal(t, "Sends automatically", d.Recurrence)
	assert.Equal(t, "From Wishlist", d.Source)
	assert.Equal(t, "Up to $75", d.Budget)
	assert.Equal(t, "Pat Lee", d.Recipient)
	assert.True(t, d.PendingInvitation)
}
