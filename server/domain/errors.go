package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrAlreadyOnline   = errors.New("user already logged in")
	ErrAlreadyInRoom   = errors.New("already in room")
	ErrNotInRoom       = errors.New("not in a room")
	ErrInvalidRoomName = errors.New("invalid room name")
	ErrInvalidUsername = errors.New("invalid username")
	ErrNotRegistered   = errors.New("session not registered")
	ErrSessionClosed   = errors.New("session closed")
	ErrQueueFull       = errors.New("session outbound queue is full")
)
