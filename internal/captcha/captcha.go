// Package captcha defines the CAPTCHA solving capability consumed by
// workflow handlers. Recognition itself is delegated to an external service.
package captcha

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// ErrUnrecognized is returned when a solver produced no text.
var ErrUnrecognized = errors.New("captcha: image not recognized")

// Solver turns a CAPTCHA image into its text.
type Solver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// SolverFunc adapts a function to Solver.
type SolverFunc func(ctx context.Context, image []byte) (string, error)

func (f SolverFunc) Solve(ctx context.Context, image []byte) (string, error) { return f(ctx, image) }

// HTTPSolver uploads the image to an OCR endpoint and reads the text from
// the JSON response at ResultPath (gjson syntax).
type HTTPSolver struct {
	Client     *resty.Client
	Endpoint   string
	Field      string
	ResultPath string
}

func (s *HTTPSolver) Solve(ctx context.Context, image []byte) (string, error) {
	field := s.Field
	if field == "" {
		field = "image"
	}
	resp, err := s.Client.R().
		SetContext(ctx).
		SetFileReader(field, "captcha.png", bytes.NewReader(image)).
		Post(s.Endpoint)
	if err != nil {
		return "", fmt.Errorf("captcha: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("captcha: http %d", resp.StatusCode())
	}
	path := s.ResultPath
	if path == "" {
		path = "text"
	}
	text := strings.TrimSpace(gjson.GetBytes(resp.Body(), path).String())
	if text == "" {
		return "", ErrUnrecognized
	}
	return text, nil
}
