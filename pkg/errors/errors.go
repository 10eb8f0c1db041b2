// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeDocumentReadFailure   Code = "document.read.failure"
	CodeDocumentParseInvalid  Code = "document.parse.invalid"
	CodeDocumentTypeInvalid   Code = "document.type.invalid"
	CodeDocumentSizeExceeded  Code = "document.size.exceeded"
	CodeDocumentEmptyInvalid  Code = "document.empty.invalid"
	CodeDocumentGetNotFound   Code = "document.get.not_found"
	CodeChunkerOptionsInvalid Code = "chunker.options.invalid"

	CodeIngestDocumentEmpty  Code = "ingest.document.empty.invalid"
	CodeIngestUpsertFailure  Code = "ingest.upsert.batch.failure"
	CodeIngestRequestInvalid Code = "ingest.request.invalid"

	CodeEmbeddingRequestInvalid      Code = "embedding.request.invalid"
	CodeEmbeddingUpstreamFailure     Code = "embedding.upstream.failure"
	CodeEmbeddingUpstreamUnreachable Code = "embedding.upstream.unreachable"
	CodeEmbeddingDimensionMismatch   Code = "embedding.dimension.mismatch"
	CodeEmbeddingBackendUnsupported  Code = "embedding.backend.unsupported"

	CodeVectorUpsertFailure       Code = "vector.upsert.failure"
	CodeVectorQueryFailure        Code = "vector.query.failure"
	CodeVectorCollectionFailure   Code = "vector.collection.failure"
	CodeVectorRecordInvalid       Code = "vector.record.invalid"
	CodeVectorBackendUnsupported  Code = "vector.backend.unsupported"
	CodeVectorUpstreamUnreachable Code = "vector.upstream.unreachable"

	CodeRerankRequestInvalid      Code = "rerank.request.invalid"
	CodeRerankUpstreamFailure     Code = "rerank.upstream.failure"
	CodeRerankResponseInvalid     Code = "rerank.response.invalid"
	CodeRerankBackendUnsupported  Code = "rerank.backend.unsupported"
	CodeRerankUpstreamUnreachable Code = "rerank.upstream.unreachable"

	CodeAskRequestInvalid Code = "ask.request.invalid"
	CodeAskFailure        Code = "ask.pipeline.failure"
	CodeRAGConfigInvalid  Code = "rag.config.invalid"

	CodeStoreSessionGetNotFound   Code = "store.session.get.not_found"
	CodeStoreDocumentGetNotFound  Code = "store.document.get.not_found"
	CodeStoreMessageAppendInvalid Code = "store.message.append.invalid_input"
	CodeStoreDatabaseFailure      Code = "store.database.failure"
	CodeStoreInvalidInput         Code = "store.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeProviderRequestInvalid      Code = "provider.request.invalid"
	CodeProviderResponseInvalid     Code = "provider.response.invalid"
	CodeProviderUpstreamFailure     Code = "provider.upstream.failure"
	CodeProviderUpstreamUnreachable Code = "provider.upstream.unreachable"
	CodeProviderNotFound            Code = "provider.registry.not_found"
	CodeProviderAllUnavailable      Code = "provider.routing.all_unavailable"
	CodeProviderNoDefault           Code = "provider.routing.no_default"
	CodeProviderInvalidModelRef     Code = "provider.routing.invalid_model_ref"

	CodeSecretResolveFailure Code = "secret.resolve.failure"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretDeleteFailure  Code = "secret.delete.failure"
	CodeSecretListFailure    Code = "secret.list.failure"
	CodeSecretGetNotFound    Code = "secret.get.not_found"
	CodeSecretInputInvalid   Code = "secret.input.invalid"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerRateLimited     Code = "server.rate.exceeded"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"
	CodeServerNotImplemented  Code = "server.method.not_implemented"

	CodeCLIGatewayNotRunning Code = "cli.gateway.not_running"
	CodeCLIRequestFailure    Code = "cli.request.failure"
	CodeCLIResponseInvalid   Code = "cli.response.invalid"
	CodeCLISetupFailure      Code = "cli.setup.failure"
	CodeCLIInputInvalid      Code = "cli.input.invalid"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// FieldValue creates a structured error field.
func FieldValue(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// Field is kept as the primary helper for terse callsites.
func Field(key string, value any) Attr {
	return FieldValue(key, value)
}

func FieldDocumentHash(value string) Attr {
	return Field("pdf_hash", value)
}

func FieldSessionID(value string) Attr {
	return Field("session_id", value)
}

func FieldBatch(value int) Attr {
	return Field("batch", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsLimitExceeded(err error) bool {
	return reason(CodeOf(err)) == "exceeded"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

// IsUnreachable reports whether an upstream service could not be contacted
// at all, as opposed to answering with an error.
func IsUnreachable(err error) bool {
	return reason(CodeOf(err)) == "unreachable"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	if !strings.Contains(string(code), "upstream") {
		return false
	}
	r := reason(code)
	return r == "failure" || r == "unreachable"
}

func IsMismatch(err error) bool {
	return reason(CodeOf(err)) == "mismatch"
}

func HTTPStatus(err error) int {
	switch {
	case HasCode(err, CodeServerNotImplemented):
		return http.StatusNotImplemented
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case HasCode(err, CodeDocumentSizeExceeded):
		return http.StatusRequestEntityTooLarge
	case IsLimitExceeded(err):
		return http.StatusTooManyRequests
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUnreachable(err):
		return http.StatusServiceUnavailable
	case IsMismatch(err):
		// The embedding backend answered with vectors the index cannot hold.
		return http.StatusBadGateway
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
