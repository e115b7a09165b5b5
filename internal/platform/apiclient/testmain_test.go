package apiclient

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// keep-alive connections to closed test servers wind down on their own
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}
