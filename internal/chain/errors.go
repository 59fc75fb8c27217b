package chain

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// Sentinels the log fetcher reacts to. Errors returned by HTTPClient
// satisfy errors.Is against them when the node reported that condition.
var (
	ErrRateLimited    = errors.New("rpc rate limited")
	ErrOversizeResult = errors.New("rpc result too large")
)

// Class is the handling category of an RPC failure.
type Class string

const (
	ClassRateLimited Class = "rate_limited"
	ClassOversize    Class = "oversize"
	ClassTransient   Class = "transient"
	ClassFatal       Class = "fatal"
)

// Retryable reports whether the same request may succeed later unchanged.
func (c Class) Retryable() bool {
	return c == ClassRateLimited || c == ClassTransient
}

var oversizeMessageTokens = []string{
	"too many results",
	"response size exceeded",
	"response size should not greater than",
	"more than 10000 results",
	"query returned more than",
	"log response size exceeded",
	"block range is too wide",
	"block range too large",
}

var rateLimitMessageTokens = []string{
	"rate limit",
	"429",
	"too many requests",
	"request limit reached",
	"exceeded the quota",
}

var transientMessageTokens = []string{
	"connection reset",
	"connection refused",
	"eof",
	"timeout",
	"temporarily unavailable",
	"502",
	"503",
	"504",
}

type classifiedError struct {
	err   error
	class Class
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

func (e *classifiedError) Is(target error) bool {
	switch e.class {
	case ClassRateLimited:
		return target == ErrRateLimited
	case ClassOversize:
		return target == ErrOversizeResult
	}
	return false
}

// wrap tags err with its class so callers can use errors.Is on the sentinels.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var marked *classifiedError
	if errors.As(err, &marked) {
		return err
	}
	return &classifiedError{err: err, class: Classify(err)}
}

// Classify maps an RPC error to its handling class. Unknown errors are fatal.
func Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}

	var marked *classifiedError
	if errors.As(err, &marked) {
		return marked.class
	}
	switch {
	case errors.Is(err, ErrOversizeResult):
		return ClassOversize
	case errors.Is(err, ErrRateLimited):
		return ClassRateLimited
	case errors.Is(err, context.Canceled):
		return ClassFatal
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	}

	lower := strings.ToLower(err.Error())
	// Oversize is checked first: some providers reuse the rate-limit code
	// (-32005) for "query returned more than 10000 results".
	if containsAny(lower, oversizeMessageTokens) {
		return ClassOversize
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return ClassRateLimited
		case httpErr.StatusCode >= 500:
			return ClassTransient
		default:
			return ClassFatal
		}
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == -32005 {
		return ClassRateLimited
	}

	if containsAny(lower, rateLimitMessageTokens) {
		return ClassRateLimited
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}
	if containsAny(lower, transientMessageTokens) {
		return ClassTransient
	}

	return ClassFatal
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}
