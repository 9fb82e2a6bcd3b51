package core

// error_messages.go maps technical errors to user-facing messages.
//
// # Error Codes Reference
//
// When a job fails the client receives a code it can quote to support.
// Codes are grouped by category:
//
// # Spreadsheet Errors (XLS001-XLS099)
//
//	XLS001 - Not a spreadsheet: the upload could not be opened as xlsx
//	         Patterns: "not a valid spreadsheet"
//	XLS002 - Merged cell: a write targeted a cell covered by a merged region
//	         Patterns: "cannot write merged cell"
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Invalid layout, column index, or chunk size
//	         Patterns: "invalid configuration"
//	CFG002 - Template missing or unreadable
//	         Patterns: "template unavailable"
//
// # Join Errors (JOIN001-JOIN099)
//
//	JOIN001 - One of the two PINFL inputs is missing or unreadable
//	          Patterns: "join input"
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Session not found (unknown, expired, or owned by someone else)
//	SES002 - Results uploaded before the source register
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - All job slots busy
//	JOB002 - Request cancelled
//	JOB003 - Job timed out
//	MODE001 - Unknown processing mode
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Not an .xlsx file name
//	FILE004 - No file in the request
//
// # Default Error (ERR000)
//
// Fallback when no pattern matches. Check the server log for the original
// error.
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

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

var errorPatterns = []errorPattern{
	// =========================================================================
	// Join and session errors
	// =========================================================================
	{
		pattern: "join input",
		msg: UserMessage{
			Message: "One of the PINFL files is missing or unreadable",
			Action:  "Upload the source register and the PINFL results as .xlsx files",
			Code:    "JOIN001",
		},
	},
	{
		pattern: "session not found",
		msg: UserMessage{
			Message: "PINFL session not found",
			Action:  "The session may have expired. Start a new PINFL replacement",
			Code:    "SES001",
		},
	},
	{
		pattern: "session step out of order",
		msg: UserMessage{
			Message: "The source register has not been uploaded yet",
			Action:  "Upload the source register first, then the PINFL results",
			Code:    "SES002",
		},
	},

	// =========================================================================
	// Spreadsheet errors
	// =========================================================================
	{
		pattern: "template unavailable",
		msg: UserMessage{
			Message: "The output template is unavailable",
			Action:  "Contact support with this code",
			Code:    "CFG002",
		},
	},
	{
		pattern: "not a valid spreadsheet",
		msg: UserMessage{
			Message: "The file could not be read as an Excel workbook",
			Action:  "Save the file as .xlsx and upload it again",
			Code:    "XLS001",
		},
	},
	{
		pattern: "cannot write merged cell",
		msg: UserMessage{
			Message: "A cell that must be updated is part of a merged range",
			Action:  "Unmerge the check and date columns and upload again",
			Code:    "XLS002",
		},
	},

	// =========================================================================
	// Configuration errors
	// =========================================================================
	{
		pattern: "invalid configuration",
		msg: UserMessage{
			Message: "The job is misconfigured",
			Action:  "Contact support with this code",
			Code:    "CFG001",
		},
	},

	// =========================================================================
	// Job errors
	// =========================================================================
	{
		pattern: "unknown mode",
		msg: UserMessage{
			Message: "Unknown processing mode",
			Action:  "Choose one of the modes listed by /api/modes",
			Code:    "MODE001",
		},
	},
	{
		pattern: "too many jobs",
		msg: UserMessage{
			Message: "System is busy processing other files",
			Action:  "Please wait a moment and try again",
			Code:    "JOB001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "JOB002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Processing took too long",
			Action:  "Try a smaller file or try again later",
			Code:    "JOB003",
		},
	},

	// =========================================================================
	// File errors
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the register into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "unsupported file type",
		msg: UserMessage{
			Message: "Only .xlsx files are accepted",
			Action:  "Save the file as an Excel workbook (.xlsx)",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was attached",
			Action:  "Attach the workbook in the \"file\" form field",
			Code:    "FILE004",
		},
	},

	// =========================================================================
	// Database and rate limiting
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. The first
// matching pattern wins; ERR000 is returned when nothing matches.
//
// Example:
//
//	msg := MapError(&sheet.FormatError{Err: zip.ErrFormat})
//	// msg.Code == "XLS001"
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

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
