package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

type failure struct {
	status int
	code   response.ErrCode
}

// failures maps each domain error to its HTTP status and machine code.
var failures = map[*service.Error]failure{
	service.ErrExamNotFound:         {http.StatusNotFound, response.ErrExamNotFound},
	service.ErrExamNotActive:        {http.StatusConflict, response.ErrExamNotActive},
	service.ErrExamNotYetOpen:       {http.StatusConflict, response.ErrExamNotYetOpen},
	service.ErrExamClosed:           {http.StatusConflict, response.ErrExamClosed},
	service.ErrInvalidAccessCode:    {http.StatusForbidden, response.ErrInvalidAccessCode},
	service.ErrAlreadyMaxAttempts:   {http.StatusConflict, response.ErrAlreadyMaxAttempts},
	service.ErrUnauthorized:         {http.StatusForbidden, response.ErrNotAttemptOwner},
	service.ErrResumeNotAllowed:     {http.StatusConflict, response.ErrResumeNotAllowed},
	service.ErrAttemptExpired:       {http.StatusConflict, response.ErrAttemptExpired},
	service.ErrAttemptNotActive:     {http.StatusConflict, response.ErrAttemptNotActive},
	service.ErrAttemptNotFound:      {http.StatusNotFound, response.ErrAttemptNotFound},
	service.ErrAlreadySubmitted:     {http.StatusConflict, response.ErrAlreadySubmitted},
	service.ErrNotTerminable:        {http.StatusConflict, response.ErrNotTerminable},
	service.ErrQuestionNotInAttempt: {http.StatusNotFound, response.ErrQuestionNotInAttempt},
	service.ErrInvalidAnswerPayload: {http.StatusBadRequest, response.ErrInvalidAnswer},
	service.ErrInvalidProgress:      {http.StatusBadRequest, response.ErrInvalidProgress},
	service.ErrAnswerNotFound:       {http.StatusNotFound, response.ErrAnswerNotFound},
	service.ErrNotSubjective:        {http.StatusBadRequest, response.ErrNotSubjective},
	service.ErrExceedsMaxMarks:      {http.StatusBadRequest, response.ErrExceedsMaxMarks},
	service.ErrAttemptNotFinished:   {http.StatusConflict, response.ErrAttemptNotFinished},
	service.ErrGradingPending:       {http.StatusConflict, response.ErrGradingPending},
	service.ErrResultNotFound:       {http.StatusNotFound, response.ErrResultNotFound},
	service.ErrResultNotPublished:   {http.StatusNotFound, response.ErrResultNotPublished},
	service.ErrSessionNotFound:      {http.StatusNotFound, response.ErrSessionNotFound},
}

// kindFailures covers domain errors that have no dedicated code.
var kindFailures = map[service.ErrorKind]failure{
	service.KindValidation:   {http.StatusBadRequest, response.ErrValidation},
	service.KindConflict:     {http.StatusConflict, response.ErrConflict},
	service.KindNotFound:     {http.StatusNotFound, response.ErrNotFound},
	service.KindUnauthorized: {http.StatusForbidden, response.ErrForbidden},
}

// describe resolves err to its status, code and message. ok is false for
// anything that is not a domain error.
func describe(err error) (f failure, message string, ok bool) {
	var de *service.Error
	if !errors.As(err, &de) {
		return failure{http.StatusInternalServerError, response.ErrInternal}, response.GetMessage(response.ErrInternal), false
	}
	if f, found := failures[de]; found {
		return f, response.GetMessage(f.code), true
	}
	if f, found := kindFailures[de.Kind]; found {
		return f, de.Message, true
	}
	return failure{http.StatusInternalServerError, response.ErrInternal}, response.GetMessage(response.ErrInternal), true
}

// failService writes the response for a service error. Anything that is not
// a domain error is logged and reported as an internal error.
func failService(c *gin.Context, log zerolog.Logger, err error) {
	f, message, ok := describe(err)
	if !ok {
		log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}
	response.FailWithMessage(c, f.status, f.code, message)
}
