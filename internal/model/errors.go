package model

import (
	"github.com/maxbolgarin/errm"
)

// Domain sentinels. The server boundary maps them to HTTP statuses; everything
// below the boundary matches them with errm.Is.
var (
	ErrInvalidSignature  = errm.New("invalid webhook signature")
	ErrUnsupportedEvent  = errm.New("unsupported event")
	ErrRateLimited       = errm.New("rate limit exceeded")
	ErrPipelineNotFound  = errm.New("pipeline not found")
	ErrInvalidTransition = errm.New("invalid pipeline state transition")
)
