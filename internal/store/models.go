package store

import "time"

// User is a local account. Shadow accounts created for federated logins
// have no password; their SecretToken is the session cookie value.
type User struct {
	UserID      uint   `gorm:"primaryKey"`
	Username    string `gorm:"index"`
	Email       string
	Password    *string
	SecretToken string `gorm:"index"`
	Permission  int
	Points      int
}

// ExternalUser is the durable link between a local shadow account and a
// remote identity, keyed by (GroupID, ExternalID).
type ExternalUser struct {
	ID         uint   `gorm:"primaryKey"`
	GroupID    int    `gorm:"uniqueIndex:idx_external_identity"`
	ExternalID string `gorm:"uniqueIndex:idx_external_identity"`
	UserID     uint
	Token      string
	FetchedAt  time.Time
}

// OAuthToken is an access token we issued to a peer at the token exchange.
// ServerID is the peer allowed to call back into us with it.
type OAuthToken struct {
	ID       uint   `gorm:"primaryKey"`
	UserID   uint   `gorm:"index"`
	ServerID int
	Token    string `gorm:"index"`
}

type Puzzle struct {
	PuzzleID          uint `gorm:"primaryKey"`
	UserID            uint
	PuzzleType        int
	PuzzleName        string
	DifficultyLevel   int
	AvgUserDifficulty int
	PuzzlesUnSolved   string
	PuzzleSolved      *string
	HasBeenCompleted  int
	Likes             int
}
