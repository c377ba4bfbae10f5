package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const TokenTTL = time.Hour

func HashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash plain password to hashed password: %w", err)
	}
	return string(hashedPassword), nil
}

func ComparePasswords(hashedPwd string, plainPwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPwd), []byte(plainPwd))
	return err == nil
}

// MintToken builds a fresh single-use token for the user, valid for TokenTTL.
func MintToken(userID string, now time.Time) (Token, error) {
	secretByte := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, secretByte); err != nil {
		return Token{}, fmt.Errorf("failed to generate token: %w", err)
	}

	return Token{
		ID:        uuid.New().String(),
		UserID:    userID,
		Token:     hex.EncodeToString(secretByte),
		ExpireAt:  now.Add(TokenTTL),
		Used:      false,
		CreatedAt: now,
	}, nil
}
