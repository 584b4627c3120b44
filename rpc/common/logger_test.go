package common

import (
	"bytes"
	"log"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
)

func TestInitLoggersRepeatedly(t *testing.T) {
	assert.NotPanics(t, func() {
		InitLoggers("error")
		InitLoggers("debug")
		InitLoggers("warn")
	})
	assert.Panics(t, func() { InitLoggers("loud") })
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := &xkvLogger{name: "batch", level: logger.WARNING, logger: log.New(&buf, "", 0)}

	l.Debugf("dropped %d", 1)
	l.Infof("dropped %d", 2)
	l.Warningf("kept %d", 3)
	l.Errorf("kept %d", 4)

	assert.Equal(t, "WARN  | batch           | kept 3\nERROR | batch           | kept 4\n", buf.String())

	buf.Reset()
	l.SetLevel(logger.DEBUG)
	l.Debugf("now visible")
	assert.Contains(t, buf.String(), "DEBUG | batch           | now visible")
}
