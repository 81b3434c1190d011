package room

import "errors"

var (
	ErrInvalidSettings     = errors.New("invalid room settings")
	ErrMalformedCode       = errors.New("room code must be 6 digits")
	ErrCodeTaken           = errors.New("room code already in use")
	ErrNotFound            = errors.New("room not found")
	ErrPasswordRequired    = errors.New("room requires a password")
	ErrWrongPassword       = errors.New("wrong password")
	ErrAlreadyStarted      = errors.New("game already started")
	ErrRoomFull            = errors.New("room is full")
	ErrAlreadyMember       = errors.New("already in this room")
	ErrNotHost             = errors.New("only the host can start the game")
	ErrInsufficientPlayers = errors.New("not enough players to start")
)
