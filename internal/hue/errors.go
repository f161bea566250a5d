package hue

import "errors"

var (
	// ErrNoBridges is returned by discovery when no bridge answered.
	ErrNoBridges = errors.New("no bridges found")

	// ErrLinkButton is returned by pairing while the link button has not
	// been pressed.
	ErrLinkButton = errors.New("link button not pressed")
)

// linkButtonErrorType is the v1 API error type for an unpressed link button.
const linkButtonErrorType = 101
