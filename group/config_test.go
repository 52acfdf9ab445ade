package group

import (
	"testing"

	"github.com/FerroO2000/rtpsgroup/internal/config"
	"github.com/FerroO2000/rtpsgroup/internal/telemetry"
	"github.com/stretchr/testify/assert"
)

func Test_Config(t *testing.T) {
	assert := assert.New(t)

	validator := config.NewValidator(telemetry.New("group", "test"))

	cfg := NewConfig()
	assert.Equal(0, validator.Validate(cfg))

	cfg.HighWaterMark = 0
	assert.Equal(1, validator.Validate(cfg))
	assert.Equal(DefaultHighWaterMark, cfg.HighWaterMark)

	cfg.HighWaterMark = 1.5
	assert.Equal(1, validator.Validate(cfg))
	assert.Equal(DefaultHighWaterMark, cfg.HighWaterMark)

	cfg.HighWaterMark = 1
	assert.Equal(0, validator.Validate(cfg))
}
