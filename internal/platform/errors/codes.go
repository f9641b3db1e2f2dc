// Package errors provides structured error handling for the engine.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// World/content errors
	CodeWorldNotFound        Code = "WORLD_NOT_FOUND"
	CodeWorldInvalid         Code = "WORLD_INVALID"
	CodeWorldUnknownLocation Code = "WORLD_UNKNOWN_LOCATION"
	CodeWorldUnknownQuest    Code = "WORLD_UNKNOWN_QUEST"

	// Session errors
	CodeSessionNotLoaded   Code = "SESSION_NOT_LOADED"
	CodeSessionEmptyInput  Code = "SESSION_EMPTY_INPUT"
	CodeSessionTurnAborted Code = "SESSION_TURN_ABORTED"

	// Quest errors
	CodeQuestUnknownStage      Code = "QUEST_UNKNOWN_STAGE"
	CodeQuestInvalidCondition  Code = "QUEST_INVALID_CONDITION"
	CodeQuestInvalidTransition Code = "QUEST_INVALID_TRANSITION"
	CodeQuestNotActive         Code = "QUEST_NOT_ACTIVE"

	// Beat/director errors
	CodeBeatInvalidTrigger     Code = "BEAT_INVALID_TRIGGER"
	CodeBeatInvalidConsequence Code = "BEAT_INVALID_CONSEQUENCE"

	// Generation errors
	CodeGenerationNoProvider Code = "GENERATION_NO_PROVIDER"
	CodeGenerationTransport  Code = "GENERATION_TRANSPORT"
	CodeGenerationRejected   Code = "GENERATION_REJECTED"

	// Memory errors
	CodeMemoryInvalidImportance Code = "MEMORY_INVALID_IMPORTANCE"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeStorageFailed Code = "STORAGE_FAILED"
)
