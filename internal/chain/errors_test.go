package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
)

type codedError struct {
	code int
	msg  string
}

func (e codedError) Error() string  { return e.msg }
func (e codedError) ErrorCode() int { return e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"http 429", rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}, ClassRateLimited},
		{"http 503", rpc.HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}, ClassTransient},
		{"http 400", rpc.HTTPError{StatusCode: 400, Status: "400 Bad Request"}, ClassFatal},
		{"rate limit message", errors.New("Your app has exceeded its rate limit"), ClassRateLimited},
		{"limit code", codedError{-32005, "limit exceeded"}, ClassRateLimited},
		{"oversize on limit code", codedError{-32005, "query returned more than 10000 results"}, ClassOversize},
		{"too many results", errors.New("too many results in range"), ClassOversize},
		{"response size", errors.New("Log response size exceeded. You can make eth_getLogs requests with up to a 2K block range"), ClassOversize},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ClassTransient},
		{"canceled", context.Canceled, ClassFatal},
		{"sentinel rate", fmt.Errorf("x: %w", ErrRateLimited), ClassRateLimited},
		{"sentinel oversize", fmt.Errorf("x: %w", ErrOversizeResult), ClassOversize},
		{"execution reverted", errors.New("execution reverted"), ClassFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestWrap_SupportsErrorsIs(t *testing.T) {
	err := wrap(rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"})
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected wrapped 429 to match ErrRateLimited")
	}
	if errors.Is(err, ErrOversizeResult) {
		t.Errorf("429 must not match ErrOversizeResult")
	}

	var httpErr rpc.HTTPError
	if !errors.As(err, &httpErr) {
		t.Errorf("wrapped error must still unwrap to rpc.HTTPError")
	}

	if wrap(nil) != nil {
		t.Error("wrap(nil) must be nil")
	}

	oversize := wrap(errors.New("query returned more than 10000 results"))
	if !errors.Is(oversize, ErrOversizeResult) {
		t.Errorf("expected oversize error to match ErrOversizeResult")
	}
}

func TestClass_Retryable(t *testing.T) {
	if !ClassRateLimited.Retryable() || !ClassTransient.Retryable() {
		t.Error("rate limited and transient must be retryable")
	}
	if ClassOversize.Retryable() || ClassFatal.Retryable() {
		t.Error("oversize and fatal must not be retryable unchanged")
	}
}
