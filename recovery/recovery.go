package recovery

// Strategy decides how a parse error at a known location is handled.
type Strategy interface {
	OnError(err error, location Location) Action
}

// Location pins an error to a byte offset and the object being parsed.
type Location struct {
	ByteOffset int64
	ObjectNum  uint32
	ObjectGen  uint32
	Component  string
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionWarn
)
