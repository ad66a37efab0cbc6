package collab

import (
	"fmt"
)

// error taxonomy:
// - ConfigurationError: required credential missing at startup. Fatal for
//   the flow that needs it.
// - SigningError: claim encoding/signing failed. Never coerced to an
//   empty credential.
// - TransportError: connection handshake or admin http call failed.
//   Reported into the event log, not retried.
// - ProtocolError: malformed remote payload. Local document state is
//   unchanged.

type ConfigurationError struct {
	Key string
}

func (self *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", self.Key)
}

type SigningError struct {
	Cause error
}

func (self *SigningError) Error() string {
	return fmt.Sprintf("token signing failed: %s", self.Cause)
}

func (self *SigningError) Unwrap() error {
	return self.Cause
}

type TransportError struct {
	Op string
	// http status, 0 when the failure happened before a response
	Status int
	Cause  error
}

func (self *TransportError) Error() string {
	if self.Status != 0 {
		return fmt.Sprintf("%s failed: status %d: %s", self.Op, self.Status, self.Cause)
	}
	return fmt.Sprintf("%s failed: %s", self.Op, self.Cause)
}

func (self *TransportError) Unwrap() error {
	return self.Cause
}

type ProtocolError struct {
	Cause error
}

func (self *ProtocolError) Error() string {
	return fmt.Sprintf("malformed remote payload: %s", self.Cause)
}

func (self *ProtocolError) Unwrap() error {
	return self.Cause
}
