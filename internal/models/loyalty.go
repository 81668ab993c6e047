package models

import "time"

type LoyaltyAccount struct {
	UserID    int64          `json:"user_id"`
	Points    int64          `json:"points"`
	UpdatedAt time.Time      `json:"updated_at"`
	Entries   []LoyaltyEntry `json:"entries,omitempty"`
}

type LoyaltyEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	BookingID int64     `json:"booking_id"`
	Points    int64     `json:"points"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
