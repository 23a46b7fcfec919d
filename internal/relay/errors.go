package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPayloadNotFound      = errors.New("payload not found")
	ErrConsistencyViolation = errors.New("consistency violation")
)

type ErrorKind int

const (
	KindRetryable ErrorKind = iota + 1
	KindAlreadyExists
	KindNonRetryable
)

func (k ErrorKind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindAlreadyExists:
		return "already_exists"
	case KindNonRetryable:
		return "non_retryable"
	default:
		return "unknown"
	}
}

// ChainError is the structured error an adapter returns when it knows what a
// chain failure means. Reason is only meaningful for KindNonRetryable.
type ChainError struct {
	Kind   ErrorKind
	Reason DropReason
	Err    error
}

func (e *ChainError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error) error {
	return &ChainError{Kind: KindRetryable, Err: err}
}

func NewAlreadyExistsError(err error) error {
	return &ChainError{Kind: KindAlreadyExists, Err: err}
}

func NewNonRetryableError(reason DropReason, err error) error {
	return &ChainError{Kind: KindNonRetryable, Reason: reason, Err: err}
}

type Classification struct {
	Kind   ErrorKind
	Reason DropReason
}

type errorPattern struct {
	substring string
	class     Classification
}

// Fallback for adapters whose chain SDK only reports human readable errors.
// Order matters: the first match wins.
var errorPatterns = []errorPattern{
	{"already exists", Classification{Kind: KindAlreadyExists}},
	{"already known", Classification{Kind: KindAlreadyExists}},
	{"tx already in mempool", Classification{Kind: KindAlreadyExists}},
	{"dup_transaction_error", Classification{Kind: KindAlreadyExists}},
	{"duplicate input id", Classification{Kind: KindNonRetryable, Reason: DropReasonDuplicateInput}},
	{"exceeds the byte limit", Classification{Kind: KindNonRetryable, Reason: DropReasonSizeLimitExceeded}},
	{"oversized data", Classification{Kind: KindNonRetryable, Reason: DropReasonSizeLimitExceeded}},
	{"tx too large", Classification{Kind: KindNonRetryable, Reason: DropReasonSizeLimitExceeded}},
	{"node is syncing", Classification{Kind: KindRetryable}},
	{"rate limit", Classification{Kind: KindRetryable}},
	{"too many requests", Classification{Kind: KindRetryable}},
	{"timeout", Classification{Kind: KindRetryable}},
	{"connection refused", Classification{Kind: KindRetryable}},
	{"connection reset", Classification{Kind: KindRetryable}},
	{"replacement transaction underpriced", Classification{Kind: KindRetryable}},
	{"mempool is full", Classification{Kind: KindRetryable}},
	{"eof", Classification{Kind: KindRetryable}},
}

// ClassifySubmitError maps any adapter error to the error taxonomy. A
// ChainError in the chain wins; otherwise the message is matched against the
// known patterns and anything unrecognized is terminal.
func ClassifySubmitError(err error) Classification {
	if err == nil {
		return Classification{}
	}

	var chainErr *ChainError
	if errors.As(err, &chainErr) {
		c := Classification{Kind: chainErr.Kind, Reason: chainErr.Reason}
		if c.Kind == KindNonRetryable && c.Reason == "" {
			c.Reason = DropReasonRejectedByChain
		}
		return c
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Classification{Kind: KindRetryable}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(msg, p.substring) {
			return p.class
		}
	}

	return Classification{Kind: KindNonRetryable, Reason: DropReasonRejectedByChain}
}

func IsRetryable(err error) bool {
	return ClassifySubmitError(err).Kind == KindRetryable
}
