package storage

import (
	"errors"
	"fmt"
	"path/filepath"
)

var (
	ErrChatNotFound  = errors.New("chat not found")
	ErrInvalidData   = errors.New("invalid data")
	ErrStorageInit   = errors.New("storage initialization failed")
	ErrFileOperation = errors.New("file operation failed")
)

func validateID(chatID string) error {
	if chatID == "" || chatID == "." || chatID == ".." || filepath.Base(chatID) != chatID {
		return fmt.Errorf("%w: chat id %q", ErrInvalidData, chatID)
	}
	return nil
}
