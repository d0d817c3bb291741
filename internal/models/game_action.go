package models

import "github.com/google/uuid"

// Action types written to the action log.
const (
	ActionGameStart    = "game_start"
	ActionMove         = "move"
	ActionGameEnd      = "game_end"
	ActionStorageError = "storage_error"
)

// GameActionRecord is one entry of the action log consumed by the historian.
type GameActionRecord struct {
	GameID        uuid.UUID      `json:"game_id"`
	ActionIndex   int            `json:"action_index"`
	ActorUserID   uuid.UUID      `json:"actor_user_id"`
	ActionType    string         `json:"action_type"`
	ActionPayload map[string]any `json:"action_payload"`
	Timestamp     int64          `json:"timestamp"`
}
