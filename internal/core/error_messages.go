package core

// # Error Codes Reference
//
// This file maps technical errors to user-facing messages with codes that
// users can quote to support.
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
//	DB005 - Connection reset: Database connection was interrupted
//	DB006 - Timeout: Operation timed out
//	DB007 - Deadlock: Database was busy with conflicting operations
//	DB008 - Check constraint: A value is outside its allowed range
//	        Patterns: "violates check constraint"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date (use YYYY-MM-DD or DD/MM/YYYY)
//	VAL002 - Invalid number
//	VAL003 - Required field is empty
//	VAL004 - Missing required column
//	VAL005 - Column not found: the header has no recognised column
//	VAL006 - Invalid enum: value is not in the allowed list
//	VAL007 - Release date required to release a tag
//	VAL008 - Tag already released; liberado cannot be changed back
//	VAL009 - Invalid date range: end date before start date
//	VAL010 - Invalid email address
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Not a valid .xlsx workbook
//	FILE003 - Workbook has no sheets
//	FILE004 - No file was selected
//	FILE005 - Empty file or sheet without data rows
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Import already rolled back
//	IMP002 - Too many concurrent imports
//	IMP003 - Import write failed; see import history for what was written
//	IMP004 - Request cancelled ("context canceled")
//	IMP005 - Request timed out ("context deadline exceeded")
//	IMP006 - Tag points at a missing or invalid test pack
//
// # Session Errors (AUTH001-AUTH099)
//
//	AUTH001 - Not signed in
//	AUTH002 - Session expired or signed out
//	AUTH003 - Role does not allow this action
//
// # Other
//
//	REC001  - Record not found
//	CFG001  - Attachment storage not configured
//	CFG002  - Email delivery not configured
//	RPT001  - No active report recipients
//	REQ001  - Request body could not be decoded
//	RATE001 - Too many requests
//	ERR000  - Unknown error; check the application log for the original error
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns come before
// general ones.

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

var (
	msgDuplicate = UserMessage{"A record with this ID already exists", "Review the workbook for rows imported twice", "DB001"}
	msgUnique    = UserMessage{"This value must be unique but already exists", "Check for duplicate entries", "DB002"}
	msgForeign   = UserMessage{"Referenced record does not exist", "Create the parent record first", "DB003"}
	msgTimeout   = UserMessage{"Request timed out", "Try a smaller workbook or check your connection", "IMP005"}
)

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
var errorPatterns = []errorPattern{
	// Requests
	{"invalid request body", UserMessage{"The request could not be read", "Check the submitted fields and try again", "REQ001"}},

	// Database constraints
	{"duplicate key", msgDuplicate},
	{"unique constraint", msgUnique},
	{"violates unique", msgUnique},
	{"foreign key constraint", msgForeign},
	{"violates foreign key", msgForeign},
	{"violates check constraint", UserMessage{"A value is outside its allowed range", "Check progress, quantity and release fields", "DB008"}},

	// Database connectivity
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller workbook or try again later", "DB006"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},

	// Tag state machine
	{"release date required", UserMessage{"A release date is required to release a tag", "Enter the fecha_liberacion for liberado tags", "VAL007"}},
	{"tag already released", UserMessage{"This tag is already released", "Released tags cannot be changed back to pendiente", "VAL008"}},

	// Validation
	{"invalid date range", UserMessage{"End date is before start date", "Correct the start or end date", "VAL009"}},
	{"invalid date", UserMessage{"Invalid date format detected", "Use YYYY-MM-DD or DD/MM/YYYY", "VAL001"}},
	{"invalid number", UserMessage{"Invalid number format detected", "Use whole numbers, e.g. 75 for 75%", "VAL002"}},
	{"required field", UserMessage{"Required field is empty", "Ensure all required columns have values", "VAL003"}},
	{"missing required column", UserMessage{"Required column is missing from the workbook", "Download the template and compare headers", "VAL004"}},
	{"column not found", UserMessage{"No recognised columns in the header row", "Download the template and compare headers", "VAL005"}},
	{"invalid enum", UserMessage{"Value is not in the allowed list", "Check the allowed values for this field", "VAL006"}},
	{"invalid email", UserMessage{"Invalid email address", "Check the address for typos", "VAL010"}},

	// Files
	{"file too large", UserMessage{"File exceeds the maximum size", "Split the workbook into smaller files", "FILE001"}},
	{"invalid xlsx", UserMessage{"File is not a valid Excel workbook", "Save the file as .xlsx and try again", "FILE002"}},
	{"no sheets", UserMessage{"The workbook has no sheets", "Put the data on the first sheet", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Please select an .xlsx file to import", "FILE004"}},
	{"empty file", UserMessage{"The uploaded file has no data rows", "Add rows below the header and try again", "FILE005"}},

	// Import
	{"already rolled back", UserMessage{"This import was already rolled back", "No action needed", "IMP001"}},
	{"too many concurrent imports", UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "IMP002"}},
	{"import write failed", UserMessage{"The import could not be fully written", "Check import history and roll back if needed", "IMP003"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "IMP004"}},
	{"context deadline exceeded", msgTimeout},
	{"test pack index", UserMessage{"A tag points at a missing or invalid test pack", "Check the test_pack_index column", "IMP006"}},

	// Session
	{"session required", UserMessage{"You are not signed in", "Sign in and try again", "AUTH001"}},
	{"session expired", UserMessage{"Your session has ended", "Sign in again", "AUTH002"}},
	{"forbidden", UserMessage{"Your role does not allow this action", "Ask an administrator for access", "AUTH003"}},

	// Other
	{"record not found", UserMessage{"Record not found", "It may have been deleted; refresh the page", "REC001"}},
	{"attachments storage not configured", UserMessage{"File attachments are not enabled", "Ask an administrator to configure storage", "CFG001"}},
	{"email delivery not configured", UserMessage{"Email reports are not enabled", "Ask an administrator to configure email", "CFG002"}},
	{"no active report recipients", UserMessage{"No report recipients are configured", "Add at least one active recipient", "RPT001"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first matching pattern, or ERR000.
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

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action"
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

// UserError pairs a technical error, kept for logging, with its user message.
type UserError struct {
	Technical error
	User      UserMessage
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
