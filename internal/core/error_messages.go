package core

// # Error Codes Reference
//
// User-friendly error messages with codes for support reference. When users
// encounter errors, they can quote the code to support staff for faster
// diagnosis.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: A record with this ID already exists
//	        Patterns: "duplicate key"
//	DB002 - Unique constraint: This value must be unique but already exists
//	        Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key: Referenced record does not exist
//	        Patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused: Unable to connect to database
//	        Patterns: "connection refused"
//	DB005 - Connection reset: Database connection was interrupted
//	        Patterns: "connection reset"
//	DB006 - Timeout: Operation timed out
//	        Patterns: "timeout"
//	DB007 - Deadlock: Database was busy with conflicting operations
//	        Patterns: "deadlock"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date: Invalid date format detected
//	         Patterns: "invalid date"
//	VAL002 - Invalid number: Invalid number format detected
//	         Patterns: "invalid number"
//	VAL003 - Invalid dimension type: Unknown dimension type
//	         Patterns: "invalid dimension type"
//	VAL004 - Invalid column: Column index is outside the file
//	         Patterns: "column out of range"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds maximum size limit
//	          Patterns: "file too large"
//	FILE002 - Invalid CSV: File is not a valid CSV
//	          Patterns: "invalid csv", "malformed file"
//	FILE003 - Encoding error: File contains invalid characters
//	          Patterns: "encoding error"
//	FILE004 - No file: No file was selected
//	          Patterns: "no file provided"
//	FILE005 - Empty file: The uploaded file is empty
//	          Patterns: "empty file"
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - Invalid mapping: Required dimensions are not mapped
//	         Patterns: "invalid mapping"
//	MAP002 - No analysis: The upload has not been analyzed
//	         Patterns: "analysis not found"
//	MAP003 - No mappings: No columns could be mapped
//	         Patterns: "no mappings"
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - Job in progress: The upload is already being processed
//	         Patterns: "already in progress"
//	JOB002 - System busy: Too many processing jobs
//	         Patterns: "too many concurrent processing jobs"
//	JOB003 - Not found: Upload, analysis or job does not exist
//	         Patterns: "not found"
//	JOB004 - Invalid state: The job cannot change to the requested state
//	         Patterns: "invalid job state transition"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//
// Patterns are matched case-insensitively using strings.Contains. The first
// matching pattern wins, so more specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. Order matters: specific patterns before general ones.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Errors (DB001-DB007)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Please try again; if it persists contact support",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Please try again; if it persists contact support",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Please try again; if it persists contact support",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Re-register the upload and analyze it again",
			Code:    "DB003",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Re-register the upload and analyze it again",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL004)
	// =========================================================================
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Use YYYY-MM-DD, MM/DD/YYYY, or set a dateLayout rule on the TIME mapping",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Use plain decimal values in value columns",
			Code:    "VAL002",
		},
	},
	{
		pattern: "invalid dimension type",
		msg: UserMessage{
			Message: "Unknown dimension type",
			Action:  "Use one of TIME, LOCATION, INDICATOR_NAME, INDICATOR_VALUE, UNIT, SOURCE, GOAL, ADDITIONAL",
			Code:    "VAL003",
		},
	},
	{
		pattern: "column out of range",
		msg: UserMessage{
			Message: "Column index is outside the file",
			Action:  "Choose a column from the analysis",
			Code:    "VAL004",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE005)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is delimited text with consistent quoting",
			Code:    "FILE002",
		},
	},
	{
		pattern: "malformed file",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is delimited text with consistent quoting",
			Code:    "FILE002",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save file as UTF-8 encoding",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a CSV file with data rows",
			Code:    "FILE005",
		},
	},

	// =========================================================================
	// Mapping Errors (MAP001-MAP003)
	// =========================================================================
	{
		pattern: "invalid mapping",
		msg: UserMessage{
			Message: "Required dimensions are not mapped",
			Action:  "Map at least one INDICATOR_NAME and one INDICATOR_VALUE column",
			Code:    "MAP001",
		},
	},
	{
		pattern: "analysis not found",
		msg: UserMessage{
			Message: "The upload has not been analyzed",
			Action:  "Run structure analysis first",
			Code:    "MAP002",
		},
	},
	{
		pattern: "no mappings",
		msg: UserMessage{
			Message: "No columns could be mapped",
			Action:  "Map columns manually",
			Code:    "MAP003",
		},
	},

	// =========================================================================
	// Job Errors (JOB001-JOB004)
	// =========================================================================
	{
		pattern: "already in progress",
		msg: UserMessage{
			Message: "This upload is already being processed",
			Action:  "Wait for the current job to finish",
			Code:    "JOB001",
		},
	},
	{
		pattern: "too many concurrent processing jobs",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "JOB002",
		},
	},
	{
		pattern: "invalid job state transition",
		msg: UserMessage{
			Message: "The job cannot change to the requested state",
			Action:  "Refresh the job status",
			Code:    "JOB004",
		},
	},
	{
		pattern: "not found",
		msg: UserMessage{
			Message: "The requested item does not exist",
			Action:  "Check the identifier and try again",
			Code:    "JOB003",
		},
	},

	// Generic timeouts come after every specific pattern.
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB006",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000). Support staff
// should check application logs for the original technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. The first
// matching pattern wins; ERR000 is the fallback.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
