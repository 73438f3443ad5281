package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"noteflow/models"
	"noteflow/store"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	}
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type pagination struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"hasMore"`
}

func paginate(total int64, p store.Page) pagination {
	return pagination{
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: int64(p.Offset+p.Limit) < total,
	}
}

func respond(c *gin.Context, status int, message string, data any) {
	body := gin.H{"success": true, "message": message}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

func invalid(c *gin.Context, errs ...fieldError) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"message": "Validation failed",
		"errors":  errs,
	})
}

// serverError logs err and answers 500. The error text is only exposed in development.
func (s *Server) serverError(c *gin.Context, message string, err error) {
	s.log.Error(message, "path", c.Request.URL.Path, "error", err)
	c.Error(err)
	body := gin.H{"success": false, "message": message}
	if s.dev {
		body["error"] = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, body)
}

type normalizer interface {
	normalize()
}

// bind decodes the JSON body, lets the input normalize itself and only then
// runs the validator tags, so padded values are judged after trimming.
func bind(c *gin.Context, in any) bool {
	err := decodeJSON(c.Request, in)
	if err == nil {
		if n, ok := in.(normalizer); ok {
			n.normalize()
		}
		err = binding.Validator.ValidateStruct(in)
	}
	if err != nil {
		invalid(c, bindErrors(err)...)
		return false
	}
	return true
}

func decodeJSON(req *http.Request, in any) error {
	if req == nil || req.Body == nil {
		return io.EOF
	}
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(in)
}

func bindErrors(err error) []fieldError {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) {
		out := make([]fieldError, 0, len(ves))
		for _, fe := range ves {
			out = append(out, fieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
		return out
	}

	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.Is(err, models.ErrInvalidMoney):
		return []fieldError{{Field: "price", Message: priceMessage}}
	case errors.As(err, &typeErr):
		return []fieldError{{Field: typeErr.Field, Message: fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type)}}
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return []fieldError{{Field: "body", Message: "Malformed JSON"}}
	case errors.Is(err, io.EOF):
		return []fieldError{{Field: "body", Message: "Request body is required"}}
	}
	return []fieldError{{Field: "body", Message: err.Error()}}
}

// max=999999 in the price binding tags mirrors models.MaxPrice.
var priceMessage = "Price must be between 0 and " + models.MaxPrice.String()

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return "Please provide a valid email address"
	case "eqfield":
		if name == "confirmPassword" {
			return "Passwords do not match"
		}
		return name + " must match " + fe.Param()
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return name + " must be a valid URL"
	case "uuid":
		return "Invalid " + name + " format"
	case "min", "max":
		if name == "price" {
			return priceMessage
		}
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		switch fe.Kind() {
		case reflect.String:
			return fmt.Sprintf("%s must be %s %s characters", name, bound, fe.Param())
		case reflect.Slice:
			return fmt.Sprintf("%s must contain %s %s item(s)", name, bound, fe.Param())
		}
		return fmt.Sprintf("%s must be %s %s", name, bound, fe.Param())
	}
	return name + " is invalid"
}

// pageQuery reads limit and offset, rejecting values outside 1..100 and >= 0.
func pageQuery(c *gin.Context, def int) (store.Page, bool) {
	p := store.Page{Limit: def}
	var errs []fieldError
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > store.MaxLimit {
			errs = append(errs, fieldError{Field: "limit", Message: "Limit must be between 1 and 100"})
		} else {
			p.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fieldError{Field: "offset", Message: "Offset must be a positive integer"})
		} else {
			p.Offset = n
		}
	}
	if len(errs) > 0 {
		invalid(c, errs...)
		return p, false
	}
	return p, true
}

// idParam checks that a path parameter is a uuid.
func idParam(c *gin.Context, name, label string) (string, bool) {
	id := c.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		invalid(c, fieldError{Field: name, Message: "Invalid " + label})
		return "", false
	}
	return id, true
}
