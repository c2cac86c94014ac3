package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrRetryFailed      = errors.New("request failed after all retries")
	ErrClientHTTPError  = errors.New("client HTTP error (4xx)")
	ErrServerHTTPError  = errors.New("server HTTP error (5xx)")
	ErrOtherHTTPError   = errors.New("other HTTP error (non-2xx)")
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	ErrScopeViolation   = errors.New("URL out of scope")
	ErrNotHTML          = errors.New("response is not HTML")
	ErrParsing          = errors.New("parsing error")
	ErrFilesystem       = errors.New("filesystem error")
	ErrDatabase         = errors.New("database error")
	ErrSemaphoreTimeout = errors.New("timeout acquiring semaphore")
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrResponseBodyRead = errors.New("failed to read response body")
	ErrConfigValidation = errors.New("configuration validation error")
	ErrCheckpoint       = errors.New("checkpoint error")
	ErrRender           = errors.New("report rendering error")
	ErrAlreadyRunning   = errors.New("an audit is already running")
	ErrNotRunning       = errors.New("no audit is running")
	ErrNotFound         = errors.New("not found")
)

// WrapErrorf wraps sentinel with a formatted message so errors.Is keeps matching.
func WrapErrorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// CategorizeError maps an error to a short category string for log fields.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrRetryFailed):
		underlying := errors.Unwrap(err)
		if underlying == nil {
			return "RetryFailed_Unknown"
		}
		if errors.Is(underlying, ErrServerHTTPError) {
			return "RetryFailed_HTTPServer"
		}
		if errors.Is(underlying, ErrClientHTTPError) {
			return "RetryFailed_HTTPClient"
		}
		var netErr net.Error
		if errors.As(underlying, &netErr) && netErr.Timeout() {
			return "RetryFailed_NetworkTimeout"
		}
		return "RetryFailed_" + networkCategory(underlying.Error(), "NetworkOther")
	case errors.Is(err, ErrClientHTTPError):
		msg := err.Error()
		for _, code := range []string{"404", "403", "401", "429"} {
			if strings.Contains(msg, " "+code+" ") {
				return "HTTP_" + code
			}
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrRobotsDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrScopeViolation):
		return "Policy_Scope"
	case errors.Is(err, ErrNotHTML):
		return "Content_NotHTML"
	case errors.Is(err, ErrParsing):
		msg := err.Error()
		switch {
		case strings.Contains(msg, "URL"):
			return "Content_ParsingURL"
		case strings.Contains(msg, "HTML"):
			return "Content_ParsingHTML"
		case strings.Contains(msg, "JSON"):
			return "Content_ParsingJSON"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrFilesystem):
		switch {
		case errors.Is(err, os.ErrPermission):
			return "Filesystem_Permission"
		case errors.Is(err, os.ErrNotExist):
			return "Filesystem_NotExist"
		case errors.Is(err, os.ErrExist):
			return "Filesystem_Exist"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrSemaphoreTimeout):
		return "Resource_SemaphoreTimeout"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	case errors.Is(err, ErrCheckpoint):
		return "Pipeline_Checkpoint"
	case errors.Is(err, ErrRender):
		return "Pipeline_Render"
	case errors.Is(err, ErrAlreadyRunning), errors.Is(err, ErrNotRunning):
		return "Job_State"
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if strings.Contains(err.Error(), "semaphore") {
			return "Resource_SemaphoreTimeout"
		}
		return "System_ContextDeadlineExceeded"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	if cat := networkCategory(err.Error(), ""); cat != "" {
		return "Network_" + cat
	}
	return "Unknown"
}

// networkCategory classifies common transport failures by message text.
func networkCategory(msg, fallback string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return "Timeout"
	case strings.Contains(lower, "connection refused"):
		return "ConnectionRefused"
	case strings.Contains(lower, "no such host"):
		return "DNSLookup"
	case strings.Contains(lower, "tls"), strings.Contains(lower, "certificate"):
		return "TLS"
	case strings.Contains(lower, "reset by peer"):
		return "ConnectionReset"
	}
	return fallback
}
