//go:build rtpsdebug

package group

const debugAssertions = true
