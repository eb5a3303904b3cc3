package recovery

import "fmt"

// Strict fails fast on any error.
type Strict struct{}

func (Strict) OnError(err error, location Location) Action { return ActionFail }

// Lenient records errors and keeps going.
type Lenient struct {
	Errors []error
}

func (l *Lenient) OnError(err error, location Location) Action {
	l.Errors = append(l.Errors, fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err))
	return ActionWarn
}
