package signin_test

import (
	"os"
	"testing"

	signin "github.com/goliatone/go-signin"
)

func TestMain(m *testing.M) {
	signin.PasswordHashCost = 4
	os.Exit(m.Run())
}
