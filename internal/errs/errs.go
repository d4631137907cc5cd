// Copyright 2026 Google LLC
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errs implements the engine's closed, tagged error taxonomy.
package errs

import (
	"encoding/json"
	"fmt"
)

// Kind is one of the six closed error categories the engine ever raises.
type Kind string

const (
	KindConfig     Kind = "ConfigError"
	KindValidation Kind = "ValidationError"
	KindPlanner    Kind = "PlannerError"
	KindExecution  Kind = "ExecutionError"
	KindConnection Kind = "ConnectionError"
	KindProvider   Kind = "ProviderError"
)

// Config error codes.
const (
	CodeInvalidAPIName   = "INVALID_API_NAME"
	CodeDuplicateAPIName = "DUPLICATE_API_NAME"
	CodeInvalidReference = "INVALID_REFERENCE"
	CodeInvalidRelation  = "INVALID_RELATION"
	CodeInvalidSync      = "INVALID_SYNC"
	CodeInvalidCache     = "INVALID_CACHE"
)

// Validation error codes.
const (
	CodeUnknownTable     = "UNKNOWN_TABLE"
	CodeUnknownColumn    = "UNKNOWN_COLUMN"
	CodeUnknownRole      = "UNKNOWN_ROLE"
	CodeAccessDenied     = "ACCESS_DENIED"
	CodeInvalidFilter    = "INVALID_FILTER"
	CodeInvalidValue     = "INVALID_VALUE"
	CodeInvalidJoin      = "INVALID_JOIN"
	CodeInvalidGroupBy   = "INVALID_GROUP_BY"
	CodeInvalidHaving    = "INVALID_HAVING"
	CodeInvalidOrderBy   = "INVALID_ORDER_BY"
	CodeInvalidByIDs     = "INVALID_BY_IDS"
	CodeInvalidLimit     = "INVALID_LIMIT"
	CodeInvalidExists    = "INVALID_EXISTS"
	CodeInvalidAggregate = "INVALID_AGGREGATION"
)

// Planner error codes.
const (
	CodeUnreachableTables  = "UNREACHABLE_TABLES"
	CodeFederationDisabled = "FEDERATION_DISABLED"
	CodeNoCatalog          = "NO_CATALOG"
	CodeFreshnessUnmet     = "FRESHNESS_UNMET"
)

// Execution error codes.
const (
	CodeExecutorMissing      = "EXECUTOR_MISSING"
	CodeCacheProviderMissing = "CACHE_PROVIDER_MISSING"
	CodeQueryFailed          = "QUERY_FAILED"
	CodeQueryTimeout         = "QUERY_TIMEOUT"
)

// Connection error codes.
const (
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeRequestTimeout   = "REQUEST_TIMEOUT"
	CodeNetworkError     = "NETWORK_ERROR"
)

// Provider error codes.
const (
	CodeMetadataLoadFailed = "METADATA_LOAD_FAILED"
	CodeRoleLoadFailed     = "ROLE_LOAD_FAILED"
)

// Typed is the interface every error the engine raises satisfies.
type Typed interface {
	error
	Kind() Kind
	Code() string
	Details() map[string]any
	Unwrap() error
}

// Error is the concrete type backing every Kind. Construct one via the
// New* helpers rather than the struct literal so Kind/Code stay paired.
type Error struct {
	kind    Kind
	code    string
	msg     string
	details map[string]any
	cause   error
}

var _ Typed = (*Error)(nil)

func (e *Error) Kind() Kind              { return e.kind }
func (e *Error) Code() string            { return e.code }
func (e *Error) Details() map[string]any { return e.details }
func (e *Error) Unwrap() error           { return e.cause }

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.kind, e.code, e.msg, e.cause)
	}
	return fmt.Sprintf("%s[%s]: %s", e.kind, e.code, e.msg)
}

// MarshalJSON serializes the error, recursively unwrapping any nested
// cause that is itself a Typed error.
func (e *Error) MarshalJSON() ([]byte, error) {
	payload := map[string]any{
		"kind":    e.kind,
		"code":    e.code,
		"message": e.msg,
	}
	if len(e.details) > 0 {
		payload["details"] = e.details
	}
	if e.cause != nil {
		var nested Typed
		if asTyped(e.cause, &nested) {
			payload["cause"] = nested
		} else {
			payload["cause"] = e.cause.Error()
		}
	}
	return json.Marshal(payload)
}

func asTyped(err error, out *Typed) bool {
	if t, ok := err.(Typed); ok {
		*out = t
		return true
	}
	return false
}

func newErr(kind Kind, code, msg string, details map[string]any, cause error) *Error {
	return &Error{kind: kind, code: code, msg: msg, details: details, cause: cause}
}

// NewConfigError raises a single config error (prefer NewConfigErrors for
// the aggregated form the registry always actually returns).
func NewConfigError(code, msg string, details map[string]any) *Error {
	return newErr(KindConfig, code, msg, details, nil)
}

// NewValidationError aggregates one or more rule violations into the
// ValidationError shape spec.md describes: {fromTable, errors[]}.
func NewValidationError(fromTable string, violations []*Error) *Error {
	return newErr(KindValidation, "", summarize("ValidationError", len(violations)), map[string]any{
		"fromTable": fromTable,
		"errors":    violations,
	}, nil)
}

// NewValidationRule builds one rule-violation entry for use inside a
// ValidationError's errors[] list.
func NewValidationRule(code, msg string, details map[string]any) *Error {
	return newErr(KindValidation, code, msg, details, nil)
}

func NewPlannerError(code, msg string, details map[string]any) *Error {
	return newErr(KindPlanner, code, msg, details, nil)
}

func NewExecutionError(code, msg string, details map[string]any, cause error) *Error {
	return newErr(KindExecution, code, msg, details, cause)
}

func NewConnectionError(code, msg string, details map[string]any, cause error) *Error {
	return newErr(KindConnection, code, msg, details, cause)
}

func NewProviderError(provider, code, msg string, cause error) *Error {
	return newErr(KindProvider, code, msg, map[string]any{"provider": provider}, cause)
}

// NewConfigErrors aggregates one or more config-load violations, mirroring
// NewValidationError's shape, with the summary message §7 specifies.
func NewConfigErrors(violations []*Error) *Error {
	return newErr(KindConfig, "", summarize("ConfigError", len(violations)), map[string]any{
		"errors": violations,
	}, nil)
}

func summarize(kind string, n int) string {
	return fmt.Sprintf("%s failed: %d error(s)", kind, n)
}
