package pipeline

import (
	"fashion-curation-go/pkg/log"
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}
