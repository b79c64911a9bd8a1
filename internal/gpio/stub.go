//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// NewCdevProvider returns an error on non-Linux platforms.
func NewCdevProvider(chip string, bias Bias) (Provider, error) {
	return nil, errUnsupported
}

// NewRpioProvider returns an error on non-Linux platforms.
func NewRpioProvider(bias Bias) (Provider, error) {
	return nil, errUnsupported
}

// NewPeriphProvider returns an error on non-Linux platforms.
func NewPeriphProvider(bias Bias) (Provider, error) {
	return nil, errUnsupported
}
