package group

import (
	"github.com/FerroO2000/rtpsgroup/internal/config"
	"github.com/FerroO2000/rtpsgroup/wire"
)

// Default values for the group configuration.
const (
	DefaultSourceTimestamp = true
	DefaultHighWaterMark   = 1.0
)

// DefaultVendorID is the vendor id written in the header by default.
var DefaultVendorID = wire.VendorID{0x01, 0x99}

// Config is the configuration of a [Group].
type Config struct {
	// SourceTimestamp states whether DATA and DATA_FRAG submessages are
	// preceded by an INFO_TS carrying the source timestamp of the change.
	// Changes without a timestamp never get one.
	//
	// Default: true
	SourceTimestamp bool

	// HighWaterMark is the fraction of the capacity over which
	// a non-empty message is sent before appending a new submessage.
	// Lower values trade bandwidth for latency, 1 only flushes
	// when the next submessage does not fit.
	//
	// Default: 1
	HighWaterMark float64

	// VendorID is written in the header of every message.
	//
	// Default: 0x01 0x99
	VendorID wire.VendorID
}

// NewConfig returns the default configuration of a group.
func NewConfig() *Config {
	return &Config{
		SourceTimestamp: DefaultSourceTimestamp,
		HighWaterMark:   DefaultHighWaterMark,
		VendorID:        DefaultVendorID,
	}
}

// Validate checks the configuration.
func (c *Config) Validate(ac *config.AnomalyCollector) {
	config.CheckPositive(ac, "HighWaterMark", &c.HighWaterMark, DefaultHighWaterMark)
	config.CheckNotGreater(ac, "HighWaterMark", &c.HighWaterMark, 1, DefaultHighWaterMark)
}
