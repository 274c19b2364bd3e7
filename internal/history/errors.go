package history

import "errors"

var (
	ErrEmptyMessage = errors.New("message is required")
	ErrMessageSize  = errors.New("message exceeds the maximum length")
	ErrInvalidQuiz  = errors.New("quiz result needs a title, a positive total and a score within it")
)
