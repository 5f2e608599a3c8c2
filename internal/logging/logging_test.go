package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestSetupWriter(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	t.Run("info level hides debug", func(t *testing.T) {
		var buf bytes.Buffer
		SetupWriter(&buf, false)

		log.Debug().Msg("hidden message")
		log.Info().Str("plugin", "Acme/Foo").Msg("visible message")

		out := buf.String()
		assert.NotContains(t, out, "hidden message")
		assert.Contains(t, out, "visible message")
		assert.Contains(t, out, "Acme/Foo")
	})

	t.Run("verbose shows debug", func(t *testing.T) {
		var buf bytes.Buffer
		SetupWriter(&buf, true)

		log.Debug().Msg("debug message")
		assert.Contains(t, buf.String(), "debug message")
	})

	t.Run("component field", func(t *testing.T) {
		var buf bytes.Buffer
		SetupWriter(&buf, false)

		l := Component("installer")
		l.Info().Msg("staged")
		assert.Contains(t, buf.String(), "installer")
	})
}
