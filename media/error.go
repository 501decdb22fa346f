package media

import "fmt"

// ErrorCode is the numeric error taxonomy delivered through the client
// callback surface.
type ErrorCode int

const (
	ErrSuccess               ErrorCode = 0
	ErrUnknown               ErrorCode = -1
	ErrFileNotFound          ErrorCode = -100
	ErrOpenFileFailed        ErrorCode = -101
	ErrStreamNotFound        ErrorCode = -102
	ErrCodecNotFound         ErrorCode = -103
	ErrDecoderInitFailed     ErrorCode = -104
	ErrDemuxerOpenFailed     ErrorCode = -105
	ErrDemuxerFindStreamFail ErrorCode = -106
	ErrDemuxerReadFailed     ErrorCode = -107
	ErrDemuxerException      ErrorCode = -108
	ErrNetwork               ErrorCode = -200
)

// Error pairs a taxonomy code with a human-readable message. It is the only
// error shape that crosses the client callback boundary.
type Error struct {
	Code    ErrorCode
	Message string
}

// NewError builds an Error from a code and formatted message.
func NewError(code ErrorCode, format string, args ...any) Error {
	return Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e Error) Error() string {
	return fmt.Sprintf("media error %d: %s", e.Code, e.Message)
}
