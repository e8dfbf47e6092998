//go:build !linux

package agecli

func terminalHelperMain() {}
