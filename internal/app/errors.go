package service

import "errors"

// Sentinel kinds for recruitment pipeline errors.
var (
	ErrStudyClosed       = errors.New("study is not recruiting")
	ErrStudyFull         = errors.New("study reached its participant cap")
	ErrInvalidCriteria   = errors.New("criteria document is invalid")
	ErrDuplicateDelivery = errors.New("webhook delivery already processed")
	ErrQueueFull         = errors.New("insight queue is full")
	ErrTranscriptMissing = errors.New("session has no transcript")
	ErrNotStarted        = errors.New("service not started")
)
