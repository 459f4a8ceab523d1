// Package store is the persistence layer for the handful of tables the
// federation core touches: Users, ExternalUsers, OAuthTokens and the local
// puzzle catalog.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&User{}, &ExternalUser{}, &OAuthToken{}, &Puzzle{}); err != nil {
		return nil, fmt.Errorf("could not migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	return New(db)
}

// UserBySessionToken resolves a session cookie value to a local user.
// Returns nil without error when no user holds the token.
func (s *Store) UserBySessionToken(ctx context.Context, token string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("secret_token = ?", token).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserByFedToken resolves a bearer token presented by a peer to the local
// user it was issued for. Returns nil without error when the token is not
// one we issued.
func (s *Store) UserByFedToken(ctx context.Context, token string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Raw("SELECT users.* FROM users INNER JOIN o_auth_tokens ON o_auth_tokens.user_id = users.user_id WHERE o_auth_tokens.token = ?", token).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SaveOAuthToken persists an access token we issued to a peer, recording
// that the peer may call back into us on behalf of the user.
func (s *Store) SaveOAuthToken(ctx context.Context, userID uint, serverID int, token string) error {
	return s.db.WithContext(ctx).Create(&OAuthToken{
		UserID:   userID,
		ServerID: serverID,
		Token:    token,
	}).Error
}

// UpsertExternalUser links a remote identity to a local shadow account.
// When a link already exists for (group, externalID) the local user's
// username, email and session token are re-synced in place; otherwise the
// local user and the identity link are created in one transaction so a
// crash cannot leave an orphaned user behind.
func (s *Store) UpsertExternalUser(ctx context.Context, group int, externalID, username, email, externalToken, sessionToken string) (uint, error) {
	var userID uint

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ExternalUser
		err := tx.Where("group_id = ? AND external_id = ?", group, externalID).First(&existing).Error

		if err == nil {
			if err := tx.Model(&User{}).Where("user_id = ?", existing.UserID).Updates(map[string]any{
				"username":     username,
				"email":        email,
				"secret_token": sessionToken,
			}).Error; err != nil {
				return err
			}

			existing.Token = externalToken
			existing.FetchedAt = time.Now()
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}

			userID = existing.UserID
			return nil
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		user := User{
			Username:    username,
			Email:       email,
			SecretToken: sessionToken,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		if err := tx.Create(&ExternalUser{
			GroupID:    group,
			ExternalID: externalID,
			UserID:     user.UserID,
			Token:      externalToken,
			FetchedAt:  time.Now(),
		}).Error; err != nil {
			return err
		}

		userID = user.UserID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("could not link external user: %w", err)
	}

	return userID, nil
}

// LocalPuzzle is one row of the local catalog joined with its author.
type LocalPuzzle struct {
	PuzzleID          uint
	UserID            uint
	PuzzleType        int
	PuzzleName        string
	DifficultyLevel   int
	AvgUserDifficulty int
	PuzzlesUnSolved   string
	PuzzleSolved      *string
	HasBeenCompleted  int
	Username          string
}

// ListLocalPuzzles returns the local catalog filtered by difficulty and
// rating sets, and optionally by author username.
func (s *Store) ListLocalPuzzles(ctx context.Context, difficulties, ratings []int, username string) ([]LocalPuzzle, error) {
	q := s.db.WithContext(ctx).
		Table("puzzles").
		Select("puzzles.*, users.username").
		Joins("INNER JOIN users ON users.user_id = puzzles.user_id").
		Where("puzzles.difficulty_level IN ?", difficulties).
		Where("puzzles.avg_user_difficulty IN ?", ratings)

	if username != "" {
		q = q.Where("users.username = ?", username)
	}

	var rows []LocalPuzzle
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
