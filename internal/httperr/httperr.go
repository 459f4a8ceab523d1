// Package httperr carries the tagged error variants used across the
// federation surface: plain HTTP errors and peer-attributable protocol
// violations. A single echo error handler translates both into the
// {error, status, error_description} body shape shared by the supergroup.
package httperr

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Error struct {
	Status int
	Code   string
	Desc   string
}

func New(status int, code, desc string) *Error {
	return &Error{Status: status, Code: code, Desc: desc}
}

func (e *Error) Error() string {
	if e.Desc != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Desc)
	}
	return e.Code
}

// Violation is an error attributed to a federation member that broke the
// protocol contract. Group is the offending peer id (0 when unparseable);
// it is logged for auditing and never serialized to the caller.
type Violation struct {
	Status int
	Group  int
	Code   string
	Desc   string
}

func NewViolation(status, group int, code, desc string) *Violation {
	return &Violation{Status: status, Group: group, Code: code, Desc: desc}
}

func (v *Violation) Error() string {
	if v.Desc != "" {
		return fmt.Sprintf("%s: %s", v.Code, v.Desc)
	}
	return v.Code
}

type body struct {
	Err    string `json:"error"`
	Status int    `json:"status"`
	Desc   string `json:"error_description,omitempty"`
}

// Handler returns the central echo error handler. Violations are logged at
// warn with the responsible group and a fresh audit id so misbehaving peers
// can be reported over time.
func Handler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var v *Violation
		if errors.As(err, &v) {
			logger.Warn("federation protocol violation",
				"audit_id", uuid.NewString(),
				"group", v.Group,
				"code", v.Code,
				"desc", v.Desc,
			)
			c.JSON(v.Status, body{Err: v.Code, Status: v.Status, Desc: v.Desc})
			return
		}

		var e *Error
		if errors.As(err, &e) {
			c.JSON(e.Status, body{Err: e.Code, Status: e.Status, Desc: e.Desc})
			return
		}

		var ee *echo.HTTPError
		if errors.As(err, &ee) {
			c.JSON(ee.Code, body{Err: fmt.Sprint(ee.Message), Status: ee.Code})
			return
		}

		logger.Error("unhandled error", "err", err)
		c.JSON(http.StatusInternalServerError, body{
			Err:    err.Error(),
			Status: http.StatusInternalServerError,
		})
	}
}
