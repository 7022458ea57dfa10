package scholar

import "fmt"

// NetworkError wraps a transport level failure where no page reached us.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("scholar: network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// BlockedError reports that Scholar refused the request or served a
// robot challenge instead of results.
type BlockedError struct {
	Reason     string
	StatusCode int
}

func (e *BlockedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("scholar: blocked (%s, status %d)", e.Reason, e.StatusCode)
	}
	return fmt.Sprintf("scholar: blocked (%s)", e.Reason)
}

// ParseError reports a page that arrived but yielded no usable result.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("scholar: unusable page: %s", e.Reason)
}
