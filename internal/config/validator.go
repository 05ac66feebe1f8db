package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/clip-mcp/clip/internal/domain/qualname"
)

// Validate validates RootConfig using struct tags plus cross-field rules
// that the validator library's tag syntax can't express (mirrors the
// teacher's Validate: struct-tag pass, then explicit cross-field checks).
func (c *RootConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateUpstreamTransport(); err != nil {
		return err
	}
	if err := c.validateUpstreamIDsUnique(); err != nil {
		return err
	}
	return nil
}

// validateUpstreamTransport checks the transport-specific required field:
// stdio needs a command, sse needs a url.
func (c *RootConfig) validateUpstreamTransport() error {
	for _, u := range c.Upstreams {
		switch u.Transport {
		case "stdio":
			if u.Command == "" {
				return fmt.Errorf("upstreams[%s]: command is required for stdio transport", u.ID)
			}
		case "sse":
			if u.URL == "" {
				return fmt.Errorf("upstreams[%s]: url is required for sse transport", u.ID)
			}
		}
	}
	return nil
}

// validateUpstreamIDsUnique rejects duplicate or reserved-separator upstream
// ids, since they key the qualified tool namespace (qualname.Join).
func (c *RootConfig) validateUpstreamIDsUnique() error {
	seen := make(map[string]struct{}, len(c.Upstreams))
	for _, u := range c.Upstreams {
		if !qualname.Valid(u.ID) {
			return fmt.Errorf("upstreams[%s]: id must not contain the reserved separator %q", u.ID, qualname.Sep)
		}
		if _, dup := seen[u.ID]; dup {
			return fmt.Errorf("upstreams: duplicate upstream id %q", u.ID)
		}
		seen[u.ID] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors into a single
// joined, user-friendly error message.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_if":
		return fmt.Sprintf("%s is required given its sibling field's value", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
