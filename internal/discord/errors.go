package discord

import (
	"errors"

	"github.com/bwmarrin/discordgo"
)

// statusError exposes the HTTP status of a REST failure to the retry loop.
type statusError struct {
	rest *discordgo.RESTError
}

func (e *statusError) Error() string { return e.rest.Error() }

func (e *statusError) Unwrap() error { return e.rest }

func (e *statusError) StatusCode() int {
	if e.rest.Response == nil {
		return 0
	}
	return e.rest.Response.StatusCode
}

func withStatus(err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		return &statusError{rest: rest}
	}
	return err
}
