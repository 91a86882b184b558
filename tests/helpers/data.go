// data.go
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

package helpers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/localnerve/autogift/internal/models"
	"gorm.io/gorm"
)

// CreateTestProfile creates a connection profile that rules can target
func CreateTestProfile(t *testing.T, db *gorm.DB, name, email string) *models.Profile {
	profile := models.Profile{
		ID:    uuid.NewString(),
		Name:  name,
		Email: email,
	}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("Failed to create profile: %v", err)
	}
	return &profile
}

// CreateTestRule inserts an active wishlist rule for a recipient directly, bypassing the store
func CreateTestRule(t *testing.T, db *gorm.DB, userID, recipientID, dateType string, budget float64) *models.GiftRule {
	rule := models.GiftRule{
		ID:          uuid.NewString(),
		UserID:      userID,
		RecipientID: &recipientID,
		DateType:    dateType,
		BudgetLimit: &budget,
		GiftSource:  models.GiftSourceWishlist,
		IsActive:    true,
	}
	if err := db.Create(&rule).Error; err != nil {
		t.Fatalf("Failed to create rule: %v", err)
	}
	return &rule
}

// CreateTestSettings stores settings for a user with the given default budget
func CreateTestSettings(t *testing.T, db *gorm.DB, userID string, defaultBudget float64) *models.GiftSettings {
	settings := models.DefaultGiftSettings(userID)
	settings.ID = uuid.NewString()
	settings.DefaultBudgetLimit = defaultBudget
	if err := db.Create(&settings).Error; err != nil {
		t.Fatalf("Failed to create settings: %v", err)
	}
	return &settings
}

// CreateTestEvent inserts an event log row with an explicit age
func CreateTestEvent(t *testing.T, db *gorm.DB, userID, eventType string, createdAt, expiresAt time.Time) *models.AutoGiftEventLog {
	entry := models.AutoGiftEventLog{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventType: eventType,
		CreatedAt: createdAt,
		ExpiresAt: &expiresAt,
	}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}
	return &entry
}
