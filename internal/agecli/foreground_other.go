//go:build !windows

package agecli

// Prompts appear on the caller's terminal; there is no window to raise.
func platformForegrounder() Foregrounder {
	return nil
}
